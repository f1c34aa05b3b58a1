package process

import (
	"context"
	"sync"
)

// Call records one invocation of a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// FakeRunner is a scripted Runner for tests. Responses are chosen by the
// Respond function; calls are recorded in order.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Call
	Respond func(name string, args []string) (Result, error)
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	respond := f.Respond
	f.mu.Unlock()

	if respond == nil {
		return Result{}, nil
	}
	return respond(name, args)
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one command.
func (f *FakeRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
