// Package auditsink mirrors journal entries into an external,
// operator-owned system of record, for deployments that need audit
// retention beyond the journal's bounded ring (SPEC_FULL.md §11, §12).
// Grounded on the retrieval pack's pkg/firestore/client.go "disabled
// means every call is a no-op" idiom: both sinks here are constructed
// unconditionally and simply do nothing when their feature flag is off,
// so callers never branch on whether a sink is wired.
package auditsink

import (
	"context"

	"github.com/liquity/ir-agent/pkg/journal"
)

// Sink mirrors a single journal entry to an external system. Write must
// not block the journal for long; callers invoke it from a background
// goroutine fed by journal.Subscribe, not from Append itself.
type Sink interface {
	Write(ctx context.Context, e journal.Entry) error
	Close() error
}

// multiSink fans a single entry out to every configured sink, collecting
// errors instead of stopping at the first failure so one sink's outage
// doesn't silently blind the others.
type multiSink struct {
	sinks []Sink
}

func (m *multiSink) Write(ctx context.Context, e journal.Entry) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Write(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New combines the given sinks into one. A nil entry is skipped, so
// callers can pass the result of NewPostgresSink/NewFirestoreSink
// directly even when a sink's feature flag left it in no-op mode.
func New(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &multiSink{sinks: live}
}

// Run drains entries from sub (a channel obtained from journal.Subscribe)
// and writes each to sink until ctx is cancelled or sub is closed.
// Errors are swallowed here; a sink implementation is responsible for
// its own logging since it owns the detail of what failed.
func Run(ctx context.Context, sink Sink, sub <-chan journal.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			_ = sink.Write(ctx, e)
		}
	}
}
