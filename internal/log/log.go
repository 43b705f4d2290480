// Package log holds the verbosity levels and logger plumbing shared by
// rovprep packages. Loggers travel on the context as a logr.Logger backed
// by logrus, so no package depends on logrus' global instance.
package log

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bombsimon/logrusr/v4"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

const (
	DBG int = 1
	TRC int = 2
)

// New returns a logr.Logger writing logrus text records to out. An
// unparsable level leaves logrus at its default (info).
func New(out io.Writer, level string) logr.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	l.SetOutput(out)
	if ll, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(ll)
	}
	return logrusr.New(l)
}

func NewBufferSink(buffer *bytes.Buffer) logr.LogSink {
	return bufferSink{
		buffer: buffer,
	}
}

type bufferSink struct {
	name   string
	values []interface{}
	buffer *bytes.Buffer
}

var _ logr.LogSink = bufferSink{}

func (s bufferSink) Enabled(level int) bool {
	return true
}

func (s bufferSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.buffer.WriteString(fmt.Sprintf("%s %v %s %v\n", s.name, err, msg, append(s.values, keysAndValues...)))
}

func (s bufferSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.buffer.WriteString(fmt.Sprintf("%s %s %v\n", s.name, msg, append(s.values, keysAndValues...)))
}

func (s bufferSink) Init(info logr.RuntimeInfo) {}

func (s bufferSink) WithName(name string) logr.LogSink {
	return bufferSink{
		name:   name,
		values: s.values,
		buffer: s.buffer,
	}
}

func (s bufferSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	values := make([]interface{}, 0, len(s.values)+len(keysAndValues))
	values = append(values, s.values...)
	values = append(values, keysAndValues...)
	return bufferSink{
		name:   s.name,
		values: values,
		buffer: s.buffer,
	}
}
