package artifacts

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var ErrFileAlreadyExists = errors.New("file already exists")

// MapWriter implements an ArtifactWriter storing contents in memory.
type MapWriter struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMapWriter creates an artifact writer in memory using a map.
func NewMapWriter() (*MapWriter, error) {
	return &MapWriter{
		files: map[string][]byte{},
	}, nil
}

// WriteFile stores the contents read from contents under filename.
func (w *MapWriter) WriteFile(filename string, contents io.Reader) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.files[filename]; exists {
		return "", ErrFileAlreadyExists
	}

	b, err := io.ReadAll(contents)
	if err != nil {
		return "", err
	}
	w.files[filename] = b
	return filename, nil
}

// Files returns a reader over every stored file.
func (w *MapWriter) Files() map[string]io.Reader {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]io.Reader, len(w.files))
	for k, v := range w.files {
		out[k] = bytes.NewReader(v)
	}
	return out
}
