package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner records invocations and answers them from Results, keyed by
// the full command line. Commands without an entry succeed with empty
// output. It is meant for tests of packages that depend on a Runner.
type FakeRunner struct {
	mu      sync.Mutex
	Calls   []string
	Results map[string]FakeResult
}

type FakeResult struct {
	Output Output
	Err    error
}

var _ Runner = &FakeRunner{}

func (f *FakeRunner) record(name string, args []string) FakeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := commandLine(name, args)
	f.Calls = append(f.Calls, line)
	if r, ok := f.Results[line]; ok {
		return r
	}
	for prefix, r := range f.Results {
		if strings.HasSuffix(prefix, "*") && strings.HasPrefix(line, strings.TrimSuffix(prefix, "*")) {
			return r
		}
	}
	return FakeResult{}
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (*Output, error) {
	r := f.record(name, args)
	report := r.Output
	if r.Err != nil {
		return &report, fmt.Errorf("%w: %s: %v", ErrCommandFailed, commandLine(name, args), r.Err)
	}
	return &report, nil
}

func (f *FakeRunner) RunAttached(_ context.Context, _ Streams, name string, args ...string) error {
	r := f.record(name, args)
	if r.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, commandLine(name, args), r.Err)
	}
	return nil
}

// Invocations returns a copy of the recorded command lines.
func (f *FakeRunner) Invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}
