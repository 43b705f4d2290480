package runtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"net/url"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/random"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Runtime assets tests", func() {
	var (
		src    string
		digest v1.Hash
		cfg    *Config
	)
	BeforeEach(func() {
		// Set up a fake registry.
		registryLogger := log.New(io.Discard, "", log.Ldate)
		s := httptest.NewServer(registry.New(registry.Logger(registryLogger)))
		DeferCleanup(func() {
			s.Close()
		})
		u, err := url.Parse(s.URL)
		Expect(err).ToNot(HaveOccurred())
		src = fmt.Sprintf("%s/bluerov-ops/rov-software", u.Host)

		img, err := random.Image(1024, 5)
		Expect(err).ToNot(HaveOccurred())

		digest, err = img.Digest()
		Expect(err).ToNot(HaveOccurred())

		err = crane.Push(img, src+":main")
		Expect(err).ToNot(HaveOccurred())

		cfg = &Config{
			Image:        src + ":main",
			AssetBaseURL: "https://example.com/assets/",
			Calibration:  true,
		}
	})
	Context("when asking for assets", func() {
		Context("the registry works", func() {
			It("should return the image pinned to its digest", func() {
				data := Assets(context.TODO(), cfg)
				Expect(data.Images).To(ConsistOf(fmt.Sprintf("%s@%s", src, digest.String())))
			})
		})
		Context("the image does not exist", func() {
			It("should return the image by tag", func() {
				cfg.Image = src + ":missing"
				data := Assets(context.TODO(), cfg)
				Expect(data.Images).To(ConsistOf(cfg.Image))
			})
		})
		Context("the image reference is invalid", func() {
			It("should not return it", func() {
				cfg.Image = "Not A Reference"
				data := Assets(context.TODO(), cfg)
				Expect(data.Images).To(BeEmpty())
			})
		})
		It("should list every downloaded file", func() {
			data := Assets(context.TODO(), cfg)
			Expect(data.Files).To(Equal([]string{
				"https://example.com/assets/bluerov-logo.txt",
				"https://example.com/assets/docker-compose.yml",
				"https://example.com/assets/VN100_HSIEstimator.py",
			}))
		})
		It("should leave out the calibration script when calibration is off", func() {
			cfg.Calibration = false
			data := Assets(context.TODO(), cfg)
			Expect(data.Files).To(HaveLen(2))
		})
	})
})
