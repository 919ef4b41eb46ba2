// Package testutil provides test doubles for the SSH transport so
// pipeline and scheduler behavior can be exercised without real hosts.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/sshx"
)

// Response is a scripted reply to a remote command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err simulates a transport failure. When set the other fields
	// are ignored.
	Err error
}

// FakeSession is a scripted sshx.Session. Commands are matched first
// against exact entries, then against prefix rules in order.
type FakeSession struct {
	mu sync.Mutex

	// Sequence maps full command strings to ordered responses, one
	// consumed per call. Checked before Exact.
	Sequence map[string][]Response
	// Exact maps full command strings to responses.
	Exact map[string]Response
	// Prefixes maps command prefixes to responses, checked in order.
	Prefixes []PrefixResponse
	// Default is used when no rule matches. When nil an unmatched
	// command exits 1.
	Default *Response

	// Commands records every executed command in order.
	Commands []string
	// Closed reports whether Close was called.
	Closed bool
}

// PrefixResponse pairs a command prefix with its response.
type PrefixResponse struct {
	Prefix   string
	Response Response
}

// Run implements sshx.Runner.
func (s *FakeSession) Run(ctx context.Context, cmd string) (*sshx.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.Commands = append(s.Commands, cmd)
	resp, ok := s.lookupLocked(cmd)
	s.mu.Unlock()
	if !ok {
		return &sshx.Output{ExitCode: 1}, nil
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &sshx.Output{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}, nil
}

func (s *FakeSession) lookupLocked(cmd string) (Response, bool) {
	if queue, ok := s.Sequence[cmd]; ok && len(queue) > 0 {
		resp := queue[0]
		s.Sequence[cmd] = queue[1:]
		return resp, true
	}
	if resp, ok := s.Exact[cmd]; ok {
		return resp, true
	}
	for _, pr := range s.Prefixes {
		if strings.HasPrefix(cmd, pr.Prefix) {
			return pr.Response, true
		}
	}
	if s.Default != nil {
		return *s.Default, true
	}
	return Response{}, false
}

// Close implements sshx.Session.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Ran reports whether a command with the given prefix was executed.
func (s *FakeSession) Ran(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.Commands {
		if strings.HasPrefix(cmd, prefix) {
			return true
		}
	}
	return false
}

// FakeDialer is a scripted sshx.Dialer.
type FakeDialer struct {
	mu sync.Mutex

	// DialFunc handles each dial when set.
	DialFunc func(ctx context.Context, host config.HostTarget) (sshx.Session, error)
	// Session is returned from every dial when DialFunc is nil.
	Session sshx.Session
	// Err is returned from every dial when set and DialFunc is nil.
	Err error

	// Dials counts dial attempts.
	Dials int
}

// Dial implements sshx.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, host config.HostTarget) (sshx.Session, error) {
	d.mu.Lock()
	d.Dials++
	d.mu.Unlock()

	if d.DialFunc != nil {
		return d.DialFunc(ctx, host)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}
