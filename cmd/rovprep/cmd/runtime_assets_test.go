package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bluerov-ops/rovprep/internal/runtime"
)

var _ = Describe("runtime-assets test", func() {
	Context("When formatting JSON data", func() {
		It("should be formatted in a standard format", func() {
			in := map[string]interface{}{
				"foo":  "bar",
				"this": []string{"that", "theother"},
			}
			expected := "{\n    \"foo\": \"bar\",\n    \"this\": [\n        \"that\",\n        \"theother\"\n    ]\n}"
			res, err := prettyPrintJSON(in)
			Expect(err).ToNot(HaveOccurred())
			Expect(res).To(Equal(expected))
		})

		Context("With invalid data", func() {
			It("should throw an error", func() {
				// channels are not supported in json.
				_, err := prettyPrintJSON(make(chan int))
				Expect(err).To(HaveOccurred())
			})
		})
	})

	// The image lives on a registry nobody listens on, so its digest is
	// never resolved and it is listed by tag.
	const unreachableImage = "127.0.0.1:1/bluerov/rov-software:main"

	Context("When printing the runtime assets", func() {
		It("should print successfully and match the actual data", func() {
			cfg := &runtime.Config{
				Image:        unreachableImage,
				Insecure:     true,
				AssetBaseURL: "https://assets.example.com",
				Calibration:  true,
			}
			buf := bytes.NewBuffer([]byte{})
			err := printAssets(context.TODO(), cfg, buf)
			Expect(err).ToNot(HaveOccurred())

			var printed runtime.AssetData
			Expect(json.Unmarshal(buf.Bytes(), &printed)).To(Succeed())

			actual := runtime.Assets(context.TODO(), cfg)

			Expect(printed).To(BeEquivalentTo(actual))
			Expect(printed.Images).To(Equal([]string{unreachableImage}))
			Expect(printed.Files).To(HaveLen(3))
		})
	})

	Context("When calling the runtime-assets cobra command", func() {
		BeforeEach(createAndCleanupDirForArtifactsAndLogs)
		BeforeEach(func() {
			os.Setenv("ROVPREP_IMAGE", unreachableImage)
			os.Setenv("ROVPREP_INSECURE", "true")
			DeferCleanup(os.Unsetenv, "ROVPREP_IMAGE")
			DeferCleanup(os.Unsetenv, "ROVPREP_INSECURE")
		})
		It("should print successfully and list the configured image", func() {
			out, err := executeCommand(runtimeAssetsCmd())
			Expect(err).ToNot(HaveOccurred())

			var printed runtime.AssetData
			Expect(json.Unmarshal([]byte(out), &printed)).To(Succeed())

			Expect(printed.Images).To(Equal([]string{unreachableImage}))
			Expect(printed.Files).To(ContainElement(runtime.DefaultAssetBaseURL + "/docker-compose.yml"))
		})
	})
})
