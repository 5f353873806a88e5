// Package dock hides the presenter's control dock after a period without
// pointer or keyboard activity.
package dock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// AutoHider tracks dock visibility. The dock starts visible; each Activity
// shows it and restarts the countdown.
type AutoHider struct {
	clock    clockwork.Clock
	onChange func(visible bool)

	mu      sync.Mutex
	enabled bool
	timeout time.Duration
	visible bool
	cancel  chan struct{}
	closed  bool
}

// New returns a visible, unarmed hider. Call Configure with the current
// settings to start the countdown. onChange may be nil.
func New(clock clockwork.Clock, onChange func(visible bool)) *AutoHider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AutoHider{
		clock:    clock,
		onChange: onChange,
		enabled:  true,
		visible:  true,
	}
}

// Configure applies the showDock and dockAutoHideSec settings. A disabled
// dock is always hidden; a timeout of zero keeps it visible.
func (a *AutoHider) Configure(showDock bool, autoHideSec int) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.enabled = showDock
	a.timeout = time.Duration(max(autoHideSec, 0)) * time.Second

	var changed bool
	if a.enabled {
		changed = a.setVisible(true)
		a.arm()
	} else {
		a.disarm()
		changed = a.setVisible(false)
	}
	a.mu.Unlock()

	a.notify(changed, showDock)
}

// Activity shows the dock and restarts the countdown.
func (a *AutoHider) Activity() {
	a.mu.Lock()
	if a.closed || !a.enabled {
		a.mu.Unlock()
		return
	}
	changed := a.setVisible(true)
	a.arm()
	a.mu.Unlock()

	a.notify(changed, true)
}

func (a *AutoHider) Visible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

// Close cancels any pending countdown.
func (a *AutoHider) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.disarm()
}

func (a *AutoHider) setVisible(v bool) bool {
	if a.visible == v {
		return false
	}
	a.visible = v
	return true
}

func (a *AutoHider) notify(changed, visible bool) {
	if changed && a.onChange != nil {
		a.onChange(visible)
	}
}

// arm replaces the countdown; callers hold mu.
func (a *AutoHider) arm() {
	a.disarm()
	if a.timeout <= 0 {
		return
	}

	t := a.clock.NewTimer(a.timeout)
	cancel := make(chan struct{})
	a.cancel = cancel

	go func() {
		select {
		case <-t.Chan():
			a.expire(cancel)
		case <-cancel:
			stopAndDrainTimer(t)
		}
	}()
}

// disarm cancels the countdown; callers hold mu.
func (a *AutoHider) disarm() {
	if a.cancel != nil {
		close(a.cancel)
		a.cancel = nil
	}
}

func (a *AutoHider) expire(token chan struct{}) {
	a.mu.Lock()
	if a.cancel != token {
		// Superseded by newer activity.
		a.mu.Unlock()
		return
	}
	a.cancel = nil
	changed := a.setVisible(false)
	a.mu.Unlock()

	if changed {
		log.Debug().Msg("dock hidden after inactivity")
	}
	a.notify(changed, false)
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
