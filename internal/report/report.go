// Package report is the structured error channel shared by the sync layer.
//
// Failures that must not interrupt the caller (a malformed inbound message,
// a panicking subscriber, a failed refetch) are handed to a Reporter instead
// of being swallowed.
package report

import (
	"errors"
	"log/slog"
	"sync"
)

// Reporter receives non-fatal errors.
type Reporter interface {
	Report(err error)
}

// Func adapts a function to Reporter.
type Func func(err error)

// Report calls f(err).
func (f Func) Report(err error) {
	f(err)
}

// Kinder is implemented by errors that carry a short classification,
// e.g. "protocol" or "fetch".
type Kinder interface {
	Kind() string
}

// KindOf returns the classification of the first error in err's chain that
// implements Kinder, or "unknown".
func KindOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "unknown"
}

// Log returns a Reporter that writes each error to logger at warn level.
func Log(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(err error) {
		if err == nil {
			return
		}
		logger.Warn("reported error", "kind", KindOf(err), "error", err)
	})
}

// Discard drops every error.
var Discard Reporter = Func(func(error) {})

// Multi fans an error out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return Func(func(err error) {
		for _, r := range reporters {
			if r != nil {
				r.Report(err)
			}
		}
	})
}

// Recorder keeps every reported error. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// Report appends err.
func (r *Recorder) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Errors returns a copy of the recorded errors.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Len returns the number of recorded errors.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
