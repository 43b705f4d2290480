// Package fetch downloads the provisioning assets (logo, compose
// descriptor, calibration helper) from their fixed URLs. Every asset is
// fetched at most once: an existing destination suppresses the download.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/bluerov-ops/rovprep/internal/log"
)

var (
	ErrDownload     = errors.New("download failed")
	ErrInvalidAsset = errors.New("invalid asset")
)

// maxAssetSize bounds a single download.
const maxAssetSize = 32 << 20

// Outcome describes what Fetch did.
type Outcome int

const (
	Fetched Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "fetched"
}

// Asset is a file fetched from URL into Path.
type Asset struct {
	Name string
	URL  string
	Path string
	// Mode is the permission of the written file; 0644 when zero.
	Mode os.FileMode
	// Validate, when set, checks the payload before it is written.
	Validate func([]byte) error
}

// Fetcher downloads assets over HTTP onto Fs.
type Fetcher struct {
	Client *http.Client
	Fs     afero.Fs
}

// New returns a Fetcher on the OS filesystem with a bounded HTTP client.
func New() *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: 2 * time.Minute},
		Fs:     afero.NewOsFs(),
	}
}

// Fetch downloads a unless its destination already exists. The payload is
// written to a temporary file next to the destination and renamed into
// place, so a failed download never leaves a partial file that would
// suppress the next attempt.
func (f *Fetcher) Fetch(ctx context.Context, a Asset) (Outcome, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("asset", a.Name)

	exists, err := afero.Exists(f.Fs, a.Path)
	if err != nil {
		return Fetched, fmt.Errorf("could not check %s: %w", a.Path, err)
	}
	if exists {
		logger.V(log.DBG).Info("asset already present", "path", a.Path)
		return Skipped, nil
	}

	logger.Info("downloading asset", "url", a.URL, "path", a.Path)
	body, err := f.download(ctx, a.URL)
	if err != nil {
		return Fetched, err
	}

	if a.Validate != nil {
		if err := a.Validate(body); err != nil {
			return Fetched, fmt.Errorf("%w: %s: %v", ErrInvalidAsset, a.Name, err)
		}
	}

	if err := f.place(a, body); err != nil {
		return Fetched, err
	}
	return Fetched, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, url, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %s", ErrDownload, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, url, err)
	}
	if len(body) > maxAssetSize {
		return nil, fmt.Errorf("%w: %s: larger than %d bytes", ErrDownload, url, maxAssetSize)
	}
	return body, nil
}

func (f *Fetcher) place(a Asset, body []byte) error {
	mode := a.Mode
	if mode == 0 {
		mode = 0o644
	}

	dir := filepath.Dir(a.Path)
	if err := f.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.Fs, dir, "."+filepath.Base(a.Path)+"-*")
	if err != nil {
		return fmt.Errorf("could not create temporary file for %s: %w", a.Name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = f.Fs.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("could not write %s: %w", a.Name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not write %s: %w", a.Name, err)
	}
	if err := f.Fs.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("could not set permissions on %s: %w", a.Name, err)
	}
	if err := f.Fs.Rename(tmpName, a.Path); err != nil {
		cleanup()
		return fmt.Errorf("could not move %s into place: %w", a.Name, err)
	}
	return nil
}

// ValidateCompose checks that b is a YAML compose descriptor declaring at
// least one service.
func ValidateCompose(b []byte) error {
	var doc struct {
		Services map[string]interface{} `json:"services"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("not valid YAML: %w", err)
	}
	if len(doc.Services) == 0 {
		return errors.New("no services defined")
	}
	return nil
}

// ValidateNonEmpty rejects empty payloads.
func ValidateNonEmpty(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty file")
	}
	return nil
}
