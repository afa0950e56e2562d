package cta

import (
	"context"
	"errors"
	"time"

	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

// Clicker clicks elements and recovers once from overlay interception.
type Clicker struct {
	Log *logger.Logger
	// Settle is slept after every successful click.
	Settle time.Duration
	// Highlight marks the element before clicking (debug aid).
	Highlight bool
}

// Click reports whether the element received the click. An intercepted
// click dismisses overlays and is retried once as a forced click; a stale
// element is given up on.
func (c *Clicker) Click(ctx context.Context, doc page.Scope, el page.Element, desc string) bool {
	log := c.Log
	if log == nil {
		log = logger.Nop()
	}
	if el == nil || ctx.Err() != nil {
		return false
	}

	_ = el.ScrollIntoView()
	if c.Highlight {
		_ = el.Highlight("orange", 800*time.Millisecond)
	}

	err := el.Click()
	if errors.Is(err, page.ErrIntercepted) {
		n := DismissOverlays(ctx, doc, log)
		log.Debug().Str("desc", desc).Int("dismissed", n).Msg("click intercepted, forcing")
		err = el.ForceClick()
	}
	switch {
	case err == nil:
	case errors.Is(err, page.ErrStale):
		log.Debug().Str("desc", desc).Msg("element went stale before click")
		return false
	default:
		log.Debug().Str("desc", desc).Err(err).Msg("click failed")
		return false
	}

	log.Info().Str("desc", desc).Msg("clicked")
	_ = page.Sleep(ctx, c.Settle)
	return true
}
