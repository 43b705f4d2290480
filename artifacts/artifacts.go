// Package artifacts writes the per-run documents rovprep leaves behind,
// such as the results summary, into the artifacts directory. The writer in
// use travels on the context so any step can reach it.
package artifacts

import (
	"context"
	"io"
)

const DefaultArtifactsDir = "artifacts"

// ContextWithWriter adds ArtifactWriter w to the context ctx.
func ContextWithWriter(ctx context.Context, w ArtifactWriter) context.Context {
	return context.WithValue(ctx, artifactWriterContextKey, w)
}

// WriterFromContext returns the writer from the context, or nil.
func WriterFromContext(ctx context.Context) ArtifactWriter {
	w := ctx.Value(artifactWriterContextKey)
	if writer, ok := w.(ArtifactWriter); ok {
		return writer
	}

	return nil
}

type contextKey string

const artifactWriterContextKey contextKey = "ArtifactWriter"

// ArtifactWriter is the functionality required by all implementations.
type ArtifactWriter interface {
	WriteFile(filename string, contents io.Reader) (fullpathToFile string, err error)
}
