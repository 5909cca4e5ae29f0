package optimizer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/sqlcheck"
)

// job tracks one asynchronous session while it runs.
type job struct {
	mu     sync.Mutex
	state  domain.SessionState
	cancel context.CancelFunc
}

func (j *job) setState(st domain.SessionState) {
	j.mu.Lock()
	j.state = st
	j.mu.Unlock()
}

func (j *job) current() domain.SessionState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// RunAsync validates the query, then launches the session on its own
// goroutine and returns the session id immediately. Progress lands in
// the history store; Cancel and Status address the running session.
func (e *Engine) RunAsync(target Target, query string) (string, error) {
	if _, err := sqlcheck.Validate(query); err != nil {
		return "", err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	j := &job{state: domain.StateInit, cancel: cancel}
	e.jobs.Store(id, j)

	go func() {
		defer cancel()
		defer e.jobs.Delete(id)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("session panicked", "session", id, "panic", r)
			}
		}()
		_, _ = e.run(ctx, id, target, query)
	}()

	return id, nil
}

// Cancel stops a running session. Concluded or unknown sessions are
// not cancelable.
func (e *Engine) Cancel(id string) error {
	v, ok := e.jobs.Load(id)
	if !ok {
		return domain.ErrNotFound("session %s is not running", id)
	}
	v.(*job).cancel()
	return nil
}

// Status reports the state of a running session. ok is false once the
// session has concluded (or never existed); consult the store then.
func (e *Engine) Status(id string) (domain.SessionState, bool) {
	v, ok := e.jobs.Load(id)
	if !ok {
		return "", false
	}
	return v.(*job).current(), true
}

func (e *Engine) publish(id string, st domain.SessionState) {
	if v, ok := e.jobs.Load(id); ok {
		v.(*job).setState(st)
	}
}
