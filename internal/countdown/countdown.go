// internal/countdown/countdown.go
package countdown

import (
	"context"
	"time"

	"github.com/jason-s-yu/matchroom/internal/models"
)

// Kind identifies a countdown's purpose. At most one countdown of each kind is
// active per engine.
type Kind string

const (
	// KindMatchStart starts the match when it elapses.
	KindMatchStart Kind = "match_start"
	// KindForceGameplayStart stops waiting for slow loaders.
	KindForceGameplayStart Kind = "force_gameplay_start"
)

// Action runs when a countdown elapses or is skipped. It always runs with
// exclusive access to the engine's owner.
type Action func(ctx context.Context) error

// Clock supplies the current server time and the timers measured against it, so
// reported remaining time and the moment a countdown fires always agree.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Countdown is one running timer. Its fields are fixed once started.
type Countdown struct {
	ID       int
	Kind     Kind
	Duration time.Duration
	EndsAt   time.Time
	// Protected countdowns cannot be stopped by a client request.
	Protected bool

	action Action
	timer  Timer
}

// Remaining is measured against the absolute end time so late joiners see the
// true time left rather than the original duration.
func (c *Countdown) Remaining(now time.Time) time.Duration {
	left := c.EndsAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Info converts the countdown to its client representation.
func (c *Countdown) Info(now time.Time) models.CountdownInfo {
	return models.CountdownInfo{
		ID:            c.ID,
		Type:          string(c.Kind),
		TimeRemaining: c.Remaining(now),
		Protected:     c.Protected,
	}
}
