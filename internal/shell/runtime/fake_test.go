package runtime

import (
	"context"
	"io"
	"strings"
	"sync"
)

// fakeInvoker records every invocation and answers from respond.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(args []string) Result
}

func newFakeInvoker(respond func(args []string) Result) *fakeInvoker {
	if respond == nil {
		respond = func([]string) Result { return Result{} }
	}
	return &fakeInvoker{respond: respond}
}

func (f *fakeInvoker) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	return f.respond(args), nil
}

func (f *fakeInvoker) Start(_ context.Context, stdout, _ io.Writer, name string, args ...string) (Handle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if stdout != nil {
		_, _ = io.WriteString(stdout, "log line\n")
	}
	return doneHandle{}, nil
}

// commands returns each recorded call joined by spaces, binary omitted.
func (f *fakeInvoker) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, strings.Join(c[1:], " "))
	}
	return out
}

// withPrefix returns the recorded commands starting with prefix.
func (f *fakeInvoker) withPrefix(prefix string) []string {
	var out []string
	for _, c := range f.commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type doneHandle struct{}

func (doneHandle) Wait() error { return nil }

// containerArg returns the value of --name in run args.
func containerArg(args []string) string {
	for i, a := range args {
		if a == "--name" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
