package tasks

import (
	"errors"
	"sync"
)

// ErrTaskCanceled is the completion error of a progress surface whose
// task reached Canceled.
var ErrTaskCanceled = errors.New("task canceled")

// Progress is the long-lived surface for one task: a mutable current
// message read by whatever renders progress, and a completion signal
// resolved or rejected exactly once on terminal status.
//
// The report callback starts as a no-op placeholder: a status update
// arriving before the renderer attaches is applied to the stored
// message but not pushed anywhere. This is an accepted race; a future
// revision could replay the latest message on attach.
type Progress struct {
	mu      sync.Mutex
	message string
	report  func(message string)

	once sync.Once
	done chan struct{}
	err  error
}

func newProgress(initial string) *Progress {
	return &Progress{
		message: initial,
		done:    make(chan struct{}),
	}
}

// Attach installs the renderer's report callback, replacing the no-op
// placeholder.
func (p *Progress) Attach(report func(message string)) {
	p.mu.Lock()
	p.report = report
	p.mu.Unlock()
}

// Message returns the current progress message.
func (p *Progress) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// update stores the new message and pushes it to the attached
// renderer, if any.
func (p *Progress) update(message string) {
	p.mu.Lock()
	p.message = message
	report := p.report
	p.mu.Unlock()

	if report != nil {
		report(message)
	}
}

// complete resolves (err == nil) or rejects the surface. Only the
// first call has any effect; duplicate terminal notifications are
// safe no-ops.
func (p *Progress) complete(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the task reaches a terminal status.
func (p *Progress) Done() <-chan struct{} {
	return p.done
}

// Err reports how the surface completed: nil for a resolved task,
// ErrTaskCanceled for a rejected one. Only meaningful after Done is
// closed.
func (p *Progress) Err() error {
	return p.err
}
