// Package notify is the operator-facing toast sink. Editor components report
// outcomes here without depending on how they are displayed.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives success and error notices.
type Sink interface {
	Success(message string)
	Error(message string, err error)
}

// SlogSink writes notices to a structured logger.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink logging through l, or the default logger when
// l is nil.
func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{log: l.With("component", "notify")}
}

func (s *SlogSink) Success(message string) {
	s.log.Info(message)
}

func (s *SlogSink) Error(message string, err error) {
	s.log.Error(message, "error", err)
}

// Discard drops every notice.
var Discard Sink = discard{}

type discard struct{}

func (discard) Success(string)      {}
func (discard) Error(string, error) {}

// Kind distinguishes recorded notices.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is one recorded notification.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (n Notice) String() string {
	if n.Error != "" {
		return fmt.Sprintf("[%s] %s: %s", n.Kind, n.Message, n.Error)
	}
	return fmt.Sprintf("[%s] %s", n.Kind, n.Message)
}

// Recorder keeps notices in memory, newest last. Used by the websocket
// channel to replay notices to a connected editor, and by tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	next    Sink
}

// NewRecorder creates a recorder that also forwards to next when non-nil.
func NewRecorder(next Sink) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Success(message string) {
	r.add(Notice{Kind: KindSuccess, Message: message})
	if r.next != nil {
		r.next.Success(message)
	}
}

func (r *Recorder) Error(message string, err error) {
	n := Notice{Kind: KindError, Message: message}
	if err != nil {
		n.Error = err.Error()
	}
	r.add(n)
	if r.next != nil {
		r.next.Error(message, err)
	}
}

// maxNotices bounds a Recorder; older notices are dropped first.
const maxNotices = 100

func (r *Recorder) add(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	if over := len(r.notices) - maxNotices; over > 0 {
		r.notices = append(r.notices[:0:0], r.notices[over:]...)
	}
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Errors returns only the error notices.
func (r *Recorder) Errors() []Notice {
	var out []Notice
	for _, n := range r.Notices() {
		if n.Kind == KindError {
			out = append(out, n)
		}
	}
	return out
}
