// internal/countdown/engine.go
package countdown

import (
	"context"
	"time"

	"github.com/jason-s-yu/matchroom/internal/models"
	log "github.com/sirupsen/logrus"
)

// Dispatcher runs fn with exclusive access to the engine's owner. It must resolve
// the engine afresh (the owner may have been destroyed or replaced since the timer
// was armed) and return nil without calling fn if the owner is gone.
type Dispatcher func(ctx context.Context, fn func(*Engine) error) error

// Listener is told about countdowns starting and stopping, in order.
type Listener interface {
	CountdownStarted(cd *Countdown)
	CountdownStopped(cd *Countdown)
}

// Engine runs the countdowns of one room.
//
// Every method must be called while holding the owner's exclusive lease. Timer
// goroutines never touch engine state directly: they go through the Dispatcher,
// which queues them behind whatever flow currently holds the lease. Because Stop
// removes a countdown under that same lease, a stopped countdown can never fire.
type Engine struct {
	clock    Clock
	dispatch Dispatcher
	listener Listener
	logger   *log.Entry

	active []*Countdown
	lastID int
}

// NewEngine builds an engine. logger may be nil.
func NewEngine(clock Clock, dispatch Dispatcher, listener Listener, logger *log.Entry) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{
		clock:    clock,
		dispatch: dispatch,
		listener: listener,
		logger:   logger,
	}
}

// Start arms a new countdown. An active countdown of the same kind is stopped
// first without running its action.
func (e *Engine) Start(kind Kind, duration time.Duration, protected bool, action Action) *Countdown {
	if existing := e.Find(kind); existing != nil {
		e.Stop(existing)
	}

	e.lastID++
	cd := &Countdown{
		ID:        e.lastID,
		Kind:      kind,
		Duration:  duration,
		EndsAt:    e.clock.Now().Add(duration),
		Protected: protected,
		action:    action,
	}
	e.active = append(e.active, cd)
	cd.timer = e.clock.AfterFunc(cd.EndsAt.Sub(e.clock.Now()), func() { e.fire(cd) })

	e.logger.WithFields(log.Fields{"countdown_id": cd.ID, "kind": kind, "duration": duration}).Debug("Countdown started.")
	if e.listener != nil {
		e.listener.CountdownStarted(cd)
	}
	return cd
}

// Stop cancels cd without running its action. Returns false if cd was not active.
func (e *Engine) Stop(cd *Countdown) bool {
	if !e.remove(cd) {
		return false
	}
	e.logger.WithFields(log.Fields{"countdown_id": cd.ID, "kind": cd.Kind}).Debug("Countdown stopped.")
	if e.listener != nil {
		e.listener.CountdownStopped(cd)
	}
	return true
}

// StopKind stops the active countdown of kind, if any.
func (e *Engine) StopKind(kind Kind) bool {
	if cd := e.Find(kind); cd != nil {
		return e.Stop(cd)
	}
	return false
}

// SkipToEnd completes cd immediately, running its action on the calling flow.
func (e *Engine) SkipToEnd(ctx context.Context, cd *Countdown) error {
	if !e.isActive(cd) {
		return nil
	}
	return e.complete(ctx, cd)
}

// Shutdown disarms every countdown without events or actions. Used when the
// owner is destroyed.
func (e *Engine) Shutdown() {
	for _, cd := range e.active {
		cd.timer.Stop()
	}
	e.active = nil
}

// Find returns the active countdown of kind, or nil.
func (e *Engine) Find(kind Kind) *Countdown {
	for _, cd := range e.active {
		if cd.Kind == kind {
			return cd
		}
	}
	return nil
}

// Get returns the active countdown with id, or nil.
func (e *Engine) Get(id int) *Countdown {
	for _, cd := range e.active {
		if cd.ID == id {
			return cd
		}
	}
	return nil
}

// Active returns the running countdowns in start order.
func (e *Engine) Active() []*Countdown {
	return append([]*Countdown(nil), e.active...)
}

// Infos returns client views of every running countdown with current remaining time.
func (e *Engine) Infos() []models.CountdownInfo {
	now := e.clock.Now()
	infos := make([]models.CountdownInfo, 0, len(e.active))
	for _, cd := range e.active {
		infos = append(infos, cd.Info(now))
	}
	return infos
}

// Now exposes the engine's clock.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (e *Engine) fire(cd *Countdown) {
	ctx := context.Background()
	err := e.dispatch(ctx, func(cur *Engine) error {
		if !cur.isActive(cd) {
			// Stopped or replaced while the timer was queued behind the lease.
			return nil
		}
		return cur.complete(ctx, cd)
	})
	if err != nil {
		e.logger.WithFields(log.Fields{"countdown_id": cd.ID, "kind": cd.Kind}).Errorf("Countdown completion failed: %v", err)
	}
}

func (e *Engine) complete(ctx context.Context, cd *Countdown) error {
	e.Stop(cd)
	if cd.action == nil {
		return nil
	}
	return cd.action(ctx)
}

func (e *Engine) isActive(cd *Countdown) bool {
	for _, c := range e.active {
		if c == cd {
			return true
		}
	}
	return false
}

func (e *Engine) remove(cd *Countdown) bool {
	for i, c := range e.active {
		if c == cd {
			c.timer.Stop()
			e.active = append(e.active[:i], e.active[i+1:]...)
			return true
		}
	}
	return false
}
