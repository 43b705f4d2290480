package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// basicAuthRegistry answers /v2/ the way a registry protected by basic
// auth does.
func basicAuthRegistry(user, pass string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/" {
			http.NotFound(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

var _ = Describe("Registry login", func() {
	var (
		server *httptest.Server
		host   string
		dir    string
		client *Client
	)

	BeforeEach(func() {
		server = basicAuthRegistry("alice", "tok123")
		DeferCleanup(server.Close)
		u, err := url.Parse(server.URL)
		Expect(err).ToNot(HaveOccurred())
		host = u.Host

		dir = GinkgoT().TempDir()
		client = &Client{Store: CredentialStore{Dir: dir}}
	})

	When("the registry accepts the credential", func() {
		It("should store it in the docker config", func() {
			Expect(client.Login(context.TODO(), host, "alice", "tok123")).To(Succeed())

			_, err := os.Stat(filepath.Join(dir, "config.json"))
			Expect(err).ToNot(HaveOccurred())

			cfg, err := client.Store.Lookup(host)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Username).To(Equal("alice"))
			Expect(cfg.Password).To(Equal("tok123"))
		})
	})

	When("the registry rejects the credential", func() {
		It("should return ErrUnauthorized and store nothing", func() {
			err := client.Login(context.TODO(), host, "alice", "wrong")
			Expect(err).To(MatchError(ErrUnauthorized))

			_, err = os.Stat(filepath.Join(dir, "config.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	When("the registry cannot be reached", func() {
		It("should return ErrLoginFailed", func() {
			server.Close()
			err := client.Login(context.TODO(), host, "alice", "tok123")
			Expect(err).To(MatchError(ErrLoginFailed))
		})
	})

	Context("credential store", func() {
		It("should return an empty credential for unknown hosts", func() {
			store := CredentialStore{Dir: dir}
			cfg, err := store.Lookup("ghcr.io")
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Username).To(BeEmpty())
			Expect(cfg.Password).To(BeEmpty())
		})

		It("should overwrite a previous login", func() {
			store := CredentialStore{Dir: dir}
			Expect(store.Save("ghcr.io", "alice", "old")).To(Succeed())
			Expect(store.Save("ghcr.io", "alice", "new")).To(Succeed())
			cfg, err := store.Lookup("ghcr.io")
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Password).To(Equal("new"))
		})

		It("should file Docker Hub logins under the index key", func() {
			Expect(serverKey("docker.io")).To(Equal(dockerHubKey))
			Expect(serverKey("index.docker.io")).To(Equal(dockerHubKey))
			Expect(serverKey("ghcr.io")).To(Equal("ghcr.io"))
		})
	})
})
