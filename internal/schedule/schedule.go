// Package schedule parses drop times and sleeps until them against a clock
// corrected from the Date headers of well-known servers.
package schedule

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/logger"
)

// ParseDropTime parses user-friendly time formats, all assumed to be UTC:
//   - "2025-01-15 16:00"
//   - "2025-01-15 16:00:00"
//   - "2025-01-15 16:00 UTC"
//   - "2025-01-15T16:00:00Z" (RFC3339, may carry another offset)
func ParseDropTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " UTC")
	s = strings.TrimSuffix(s, "UTC")
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format '%s'. Use format: YYYY-MM-DD HH:MM (e.g., 2025-01-15 16:00). Time is assumed to be UTC", s)
}

// DefaultServers answer HEAD requests quickly with an accurate Date header.
var DefaultServers = []string{
	"https://www.google.com",
	"https://www.cloudflare.com",
	"https://www.amazon.com",
}

const resyncAfter = time.Hour

// Clock is local time shifted by the average offset measured against
// Servers. Before a successful Sync it is plain local time.
type Clock struct {
	Servers []string
	client  *http.Client
	log     *logger.Logger

	mu       sync.RWMutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
	now      func() time.Time
}

func NewClock(client *http.Client, log *logger.Logger) *Clock {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Clock{Servers: DefaultServers, client: client, log: log, now: time.Now}
}

// Sync measures the offset against every server and keeps the average of
// those that answered.
func (c *Clock) Sync(ctx context.Context) error {
	var total time.Duration
	n := 0
	for _, server := range c.Servers {
		off, err := c.measure(ctx, server)
		if err != nil {
			c.log.Debug().Err(err).Str("server", server).Msg("time sync failed")
			continue
		}
		c.log.Debug().Str("server", server).Dur("offset", off).Msg("time offset")
		total += off
		n++
	}
	if n == 0 {
		return fmt.Errorf("failed to sync time with any server")
	}

	c.mu.Lock()
	c.offset = total / time.Duration(n)
	c.lastSync = c.now()
	c.synced = true
	off := c.offset
	c.mu.Unlock()

	c.log.Info().Dur("offset", off).Int("servers", n).Msg("time synchronized")
	return nil
}

// measure returns server time minus local time, with local time taken at
// the midpoint of the round trip.
func (c *Clock) measure(ctx context.Context, server string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, server, nil)
	if err != nil {
		return 0, err
	}
	before := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	after := c.now()

	date := resp.Header.Get("Date")
	if date == "" {
		return 0, fmt.Errorf("no Date header in response")
	}
	serverTime, err := http.ParseTime(date)
	if err != nil {
		return 0, fmt.Errorf("failed to parse Date header: %w", err)
	}
	local := before.Add(after.Sub(before) / 2)
	return serverTime.Sub(local), nil
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.synced {
		return c.now()
	}
	return c.now().Add(c.offset)
}

func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// ShouldResync is true before the first sync and an hour after the last.
func (c *Clock) ShouldResync() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.synced {
		return true
	}
	return c.now().Sub(c.lastSync) > resyncAfter
}

// progressEvery is the interval between progress logs while waiting.
var progressEvery = 30 * time.Second

// WaitUntil blocks until clock reads at or after target, logging the
// remaining time periodically and resyncing a synced clock when it goes
// stale. It returns ctx's error if ctx ends first.
func WaitUntil(ctx context.Context, clock *Clock, target time.Time, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	ticker := time.NewTicker(progressEvery)
	defer ticker.Stop()

	for {
		remaining := target.Sub(clock.Now())
		if remaining <= 0 {
			return nil
		}
		if remaining < progressEvery {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if clock.Synced() && clock.ShouldResync() {
				log.Info().Msg("resyncing time")
				if err := clock.Sync(ctx); err != nil {
					log.Warn().Err(err).Msg("time resync failed")
				}
			}
			if left := target.Sub(clock.Now()); left > 0 {
				log.Info().Dur("remaining", left.Round(time.Second)).Msg("waiting for drop")
			}
		}
	}
}
