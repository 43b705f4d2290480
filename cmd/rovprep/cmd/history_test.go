package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/history"
)

var _ = Describe("history command", func() {
	BeforeEach(createAndCleanupDirForArtifactsAndLogs)

	Context("without recorded runs", func() {
		It("should say so", func() {
			out, err := executeCommand(historyCmd())
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("No runs recorded."))
		})
	})

	Context("with recorded runs", func() {
		BeforeEach(func() {
			rec := &lazyLedger{path: filepath.Join(os.Getenv("ROVPREP_STATEDIR"), history.DefaultFile)}
			results := bootstrap.Results{
				Started:   time.Now(),
				Completed: true,
				Steps: []bootstrap.StepResult{
					{Name: bootstrap.StepProbe, Status: bootstrap.StatusDone},
					{Name: bootstrap.StepImage, Status: bootstrap.StatusWarning, Message: "pull failed"},
				},
			}
			_, err := rec.Record(context.TODO(), results, nil)
			Expect(err).ToNot(HaveOccurred())
			_, err = rec.Record(context.TODO(), bootstrap.Results{Started: time.Now()}, errors.New("credential: empty token"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("should list them newest first", func() {
			out, err := executeCommand(historyCmd())
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("RESULT"))
			Expect(out).To(MatchRegexp(`(?s)2 .*stopped.*credential: empty token.*1 .*completed\s+1`))
		})

		It("should honour the limit", func() {
			out, err := executeCommand(historyCmd(), "--limit", "1")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("stopped"))
			Expect(out).ToNot(ContainSubstring("completed"))
		})

		It("should show steps when asked", func() {
			out, err := executeCommand(historyCmd(), "--steps")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring("pull failed"))
		})
	})

	It("should report a failure to write", func() {
		err := printRuns(errWriter(0), nil, false)
		Expect(err).To(HaveOccurred())
	})

	It("should write a table", func() {
		buf := &bytes.Buffer{}
		Expect(printRuns(buf, []history.Run{{ID: 7, Started: time.Now(), Completed: true}}, false)).To(Succeed())
		Expect(buf.String()).To(MatchRegexp(`7\s+\S+ \S+\s+completed\s+0`))
	})
})
