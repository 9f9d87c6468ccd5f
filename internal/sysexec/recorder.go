package sysexec

import (
	"context"
	"strings"
	"sync"
)

// Response is a canned result for a command prefix.
type Response struct {
	Output string
	Err    error
}

// Recorder is a Runner that records invocations and replays canned
// responses. Responses are matched by the longest command-line prefix.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Response
	// Hook, when set, runs before the canned response lookup.
	Hook func(ctx context.Context, call Call) (Response, bool)
}

// NewRecorder returns an empty Recorder where every command succeeds.
func NewRecorder() *Recorder {
	return &Recorder{responses: make(map[string]Response)}
}

// On registers a response for commands whose rendered line starts with prefix.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = resp
	return r
}

// Run implements Runner.
func (r *Recorder) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		if resp, ok := hook(ctx, call); ok {
			return []byte(resp.Output), resp.Err
		}
	}

	line := call.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	best := ""
	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil, nil
	}
	resp := r.responses[best]
	return []byte(resp.Output), resp.Err
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded invocations rendered as strings.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}
