package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// mutate runs fn as the operator, holding the mutation lock, then notifies
// watchers with the resulting state.
func (c *Controller) mutate(fn func() bool) error {
	if c.role != RoleOperator {
		return ErrNotOperator
	}
	c.mu.Lock()
	changed := fn()
	snap := c.store.Snapshot()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
	return nil
}

// UpdateSettings merges patch, persists and broadcasts the display keys.
func (c *Controller) UpdateSettings(ctx context.Context, patch state.SettingsPatch) (state.Settings, error) {
	var out state.Settings
	err := c.mutate(func() bool {
		out = c.store.UpdateSettings(ctx, patch)
		c.publishSettings(ctx, out)
		return true
	})
	return out, err
}

// StepSetting nudges a numeric setting by one step in direction (+1 or -1).
// The step is taken from the settings current under the mutation lock.
func (c *Controller) StepSetting(ctx context.Context, key string, direction int) (state.Settings, error) {
	var (
		out     state.Settings
		stepErr error
	)
	err := c.mutate(func() bool {
		patch, err := c.store.Settings().Step(key, direction)
		if err != nil {
			stepErr = err
			return false
		}
		out = c.store.UpdateSettings(ctx, patch)
		c.publishSettings(ctx, out)
		return true
	})
	if err != nil {
		return state.Settings{}, err
	}
	if stepErr != nil {
		return state.Settings{}, stepErr
	}
	return out, nil
}

// ResetSettings restores defaults.
func (c *Controller) ResetSettings(ctx context.Context) (state.Settings, error) {
	var out state.Settings
	err := c.mutate(func() bool {
		out = c.store.ResetSettings(ctx)
		c.publishSettings(ctx, out)
		return true
	})
	return out, err
}

// SetDeck replaces the presentation and rewinds to the first slide. A nil or
// empty deck returns to idle; an active item without slides is rejected
// with ErrNothingToPresent.
func (c *Controller) SetDeck(ctx context.Context, deck state.Deck) error {
	var empty error
	err := c.mutate(func() bool {
		deck = deck.Normalize()
		if item := deck.Active(); item != nil && state.TotalSlides(item, c.store.Settings()) == 0 {
			empty = fmt.Errorf("%w: %s %q has no slides", ErrNothingToPresent, item.Kind(), item.Label())
			return false
		}
		c.store.SetDeck(ctx, deck)
		c.store.SetCurrentIndex(ctx, 0)
		c.publishDeck(ctx, deck)
		c.publishIndex(ctx, 0)

		if item := deck.Active(); item != nil {
			log.Info().Str("kind", string(item.Kind())).Str("label", item.Label()).Msg("presenting")
		} else {
			log.Info().Msg("presentation cleared")
		}
		return true
	})
	if err != nil {
		return err
	}
	return empty
}

// ClearDeck returns to idle.
func (c *Controller) ClearDeck(ctx context.Context) error {
	return c.SetDeck(ctx, nil)
}

// SetCurrentIndex stores n as given and broadcasts it; readers clamp.
func (c *Controller) SetCurrentIndex(ctx context.Context, n int) error {
	return c.mutate(func() bool {
		c.store.SetCurrentIndex(ctx, n)
		c.publishIndex(ctx, n)
		return true
	})
}

// Next advances one slide. It reports false, and does nothing, on the last
// slide.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	return c.navigate(ctx, func(cur, total int) int { return cur + 1 })
}

// Previous goes back one slide; no-op on the first.
func (c *Controller) Previous(ctx context.Context) (bool, error) {
	return c.navigate(ctx, func(cur, total int) int { return cur - 1 })
}

func (c *Controller) First(ctx context.Context) (bool, error) {
	return c.navigate(ctx, func(cur, total int) int { return 0 })
}

func (c *Controller) Last(ctx context.Context) (bool, error) {
	return c.navigate(ctx, func(cur, total int) int { return total - 1 })
}

// Goto jumps to slide n, clamped into range.
func (c *Controller) Goto(ctx context.Context, n int) (bool, error) {
	return c.navigate(ctx, func(cur, total int) int { return n })
}

func (c *Controller) navigate(ctx context.Context, target func(cur, total int) int) (bool, error) {
	var moved bool
	err := c.mutate(func() bool {
		snap := c.store.Snapshot()
		total := snap.TotalSlides()
		if total == 0 {
			return false
		}
		cur := snap.Index()
		next := state.ClampIndex(target(cur, total), total)
		if next == cur {
			return false
		}
		c.store.SetCurrentIndex(ctx, next)
		c.publishIndex(ctx, next)
		moved = true
		return true
	})
	return moved, err
}
