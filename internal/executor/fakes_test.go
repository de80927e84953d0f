package executor

import (
	"context"
	"errors"
	"strings"
	"sync"

	ex "github.com/andrej220/confaudit/pkg/executor"
)

// fakeSession answers commands from a script. A command without a scripted
// reply gets an empty response.
type fakeSession struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	onSend  func(command string)
	sent    []string
	closes  int
}

func newFakeSession(replies map[string]string) *fakeSession {
	if replies == nil {
		replies = map[string]string{}
	}
	return &fakeSession{replies: replies, fail: map[string]error{}}
}

func (s *fakeSession) Send(_ context.Context, command string) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, command)
	hook := s.onSend
	reply, err := s.replies[command], s.fail[command]
	s.mu.Unlock()

	if hook != nil {
		hook(command)
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return errors.New("close errors are ignored")
}

func (s *fakeSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSession) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSession) sentContaining(sub string) bool {
	for _, c := range s.Sent() {
		if strings.Contains(c, sub) {
			return true
		}
	}
	return false
}

type fakeTransport struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	openErr  map[string]error
	opened   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessions: map[string]*fakeSession{}, openErr: map[string]error{}}
}

func (f *fakeTransport) Open(_ context.Context, host string, _ ex.Credentials, _ ex.Timeouts) (ex.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, host)
	if err := f.openErr[host]; err != nil {
		return nil, err
	}
	s, ok := f.sessions[host]
	if !ok {
		s = newFakeSession(nil)
		f.sessions[host] = s
	}
	return s, nil
}

func (f *fakeTransport) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}
