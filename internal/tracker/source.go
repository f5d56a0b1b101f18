package tracker

import (
	"fmt"
	"runtime/debug"

	"github.com/ppiankov/pulsewatch/internal/event"
)

// Failure is a raw signal from a failure source, before classification.
type Failure struct {
	Kind      string // "panic", "rejection", "resource"
	Component string
	Message   string
	Stack     string
}

// FailureSource is a subscribable stream of host failures. The core
// logic is tested with fake sources; real hosts adapt their global
// hooks (panic handlers, error channels) to this interface.
type FailureSource interface {
	Subscribe(handler func(Failure)) (unsubscribe func())
}

// Attach subscribes the tracker to a failure source. The subscription is
// released by Close. Idempotent per source instance is the caller's
// concern; attaching the same source twice doubles the events.
func (t *Tracker) Attach(src FailureSource) {
	unsub := src.Subscribe(func(f Failure) {
		cat := event.Category("")
		sev := event.Severity("")
		switch f.Kind {
		case "panic":
			sev = event.SevCritical
		case "resource":
			sev = event.SevMedium
			cat = event.CatPerformance
		}
		t.Track(Report{
			Severity:  sev,
			Category:  cat,
			Component: f.Component,
			Message:   f.Message,
			Stack:     f.Stack,
		})
	})

	t.mu.Lock()
	t.unsubs = append(t.unsubs, unsub)
	t.mu.Unlock()
}

// ChannelSource adapts a channel of failures to the FailureSource
// interface. Closing the channel ends the subscription.
type ChannelSource struct {
	C chan Failure
}

// NewChannelSource creates a buffered channel source.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{C: make(chan Failure, 64)}
}

// Subscribe pumps failures from the channel to the handler until the
// channel closes or unsubscribe is called.
func (s *ChannelSource) Subscribe(handler func(Failure)) (unsubscribe func()) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case f, ok := <-s.C:
				if !ok {
					return
				}
				handler(f)
			case <-done:
				return
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}

// Recover is the uncaught-exception hook for Go hosts: deferred at the
// top of a goroutine, it converts a panic into a critical event instead
// of crashing the host.
//
//	defer tr.Recover("ingest-worker")
func (t *Tracker) Recover(component string) {
	if rec := recover(); rec != nil {
		t.Track(Report{
			Severity:  event.SevCritical,
			Component: component,
			Message:   fmt.Sprintf("panic: %v", rec),
			Stack:     string(debug.Stack()),
		})
	}
}
