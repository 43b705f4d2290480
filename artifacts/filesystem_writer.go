package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FilesystemWriter is an ArtifactWriter that targets a particular directory on
// the underlying filesystem.
type FilesystemWriter struct {
	dir string
	fs  afero.Fs
}

type FilesystemWriterOption = func(*FilesystemWriter)

// NewFilesystemWriter creates an artifact writer which writes to the filesystem.
func NewFilesystemWriter(opts ...FilesystemWriterOption) (*FilesystemWriter, error) {
	w := FilesystemWriter{
		dir: resolveFullPath(DefaultArtifactsDir),
		fs:  afero.NewOsFs(),
	}

	for _, opt := range opts {
		opt(&w)
	}

	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create artifacts directory %s: %w", w.dir, err)
	}
	return &w, nil
}

// WithDirectory sets the artifacts directory to dir unless it's empty, in which case
// this option is ignored.
func WithDirectory(dir string) FilesystemWriterOption {
	return func(w *FilesystemWriter) {
		if dir == "" {
			return
		}
		w.dir = resolveFullPath(dir)
	}
}

// WithFs writes to fs instead of the OS filesystem.
func WithFs(fs afero.Fs) FilesystemWriterOption {
	return func(w *FilesystemWriter) {
		w.fs = fs
	}
}

// WriteFile places contents into dir at filename.
func (w *FilesystemWriter) WriteFile(filename string, contents io.Reader) (string, error) {
	fullFilePath := filepath.Join(w.Path(), filename)

	if err := afero.WriteReader(w.fs, fullFilePath, contents); err != nil {
		return fullFilePath, fmt.Errorf("could not write file to artifacts directory: %v", err)
	}
	return fullFilePath, nil
}

// Exists checks if a file exists with a filename
func (w *FilesystemWriter) Exists(filename string) (bool, error) {
	fullFilePath := filepath.Join(w.Path(), filename)

	return afero.Exists(w.fs, fullFilePath)
}

// Remove removes contents from dir at filename.
func (w *FilesystemWriter) Remove(filename string) error {
	fullFilePath := filepath.Join(w.Path(), filename)

	return w.fs.Remove(fullFilePath)
}

// Path is the full artifacts path.
func (w *FilesystemWriter) Path() string {
	return w.dir
}

// resolveFullPath resolves the full path of s if s is a relative path.
func resolveFullPath(s string) string {
	if filepath.IsAbs(s) {
		return s
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, s)
}
