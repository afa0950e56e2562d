// Package monitor watches one product across its equivalent listing URLs:
// it navigates, waits out anti-automation challenges, asks the purchase
// initiator to scan, and refreshes with a jittered delay until a purchase
// starts or the run is interrupted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dropwatch/internal/challenge"
	"dropwatch/internal/checkout"
	"dropwatch/internal/config"
	"dropwatch/internal/flow"
	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

// navAttempts bounds retries of a navigation that failed on the network.
const navAttempts = 3

// Buyer scans a page for a product and starts a purchase.
type Buyer interface {
	FindProductAndBuy(ctx context.Context, doc page.Document, name, size string, fields checkout.FieldMap, s *flow.Session) (bool, error)
}

// Target is one monitored product.
type Target struct {
	URL  string
	Name string
	Size string
}

type Monitor struct {
	cfg        *config.Config
	log        *logger.Logger
	nav        page.Navigator
	buyer      Buyer
	challenges *challenge.Handler
	robots     *RobotsGate

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.Config, log *logger.Logger, nav page.Navigator, buyer Buyer) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		cfg:        cfg,
		log:        log,
		nav:        nav,
		buyer:      buyer,
		challenges: challenge.NewHandler(cfg, log),
		robots:     NewRobotsGate(nil, log),
		sleep:      page.Sleep,
	}
}

// Challenges exposes the challenge handler so callers can tune it.
func (m *Monitor) Challenges() *challenge.Handler { return m.challenges }

// SetRobotsGate replaces the robots.txt checker.
func (m *Monitor) SetRobotsGate(g *RobotsGate) { m.robots = g }

// Run monitors t until a purchase is initiated (with stop_on_success), the
// browser is lost or ctx ends. It reports whether a purchase was initiated.
// Cancellation is not an error: the initiated state is returned as is.
func (m *Monitor) Run(ctx context.Context, t Target, fields checkout.FieldMap) (bool, error) {
	urls := ExpandURLs(t.URL)
	s := flow.NewSession()
	log := m.log.With("session", s.ID)
	log.Info().Str("product", t.Name).Str("urls", strings.Join(urls, ", ")).Msg("monitoring")

	if m.cfg.RespectRobots {
		for _, u := range urls {
			if m.robots.Allowed(ctx, u, m.cfg.RobotsUserAgent) {
				continue
			}
			log.Warn().Str("url", u).Msg("disallowed by robots.txt")
			if m.cfg.BlockOnRobots {
				return false, nil
			}
		}
	}

	if err := m.navigate(ctx, urls[0]); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", urls[0], err)
	}
	log.Info().Str("url", urls[0]).Msg("navigated")
	if err := m.settle(ctx); err != nil {
		return m.finish(s, err)
	}

	for cycle := 1; ; cycle++ {
		log.Info().Int("cycle", cycle).Msg("scan cycle starting")
		for i, u := range urls {
			if err := ctx.Err(); err != nil {
				return m.finish(s, err)
			}
			// the cart or checkout page stays on screen once a purchase started
			if s.Initiated() {
				break
			}
			label := "primary"
			if i > 0 {
				label = "alternate"
			}

			current, err := m.nav.Document().URL()
			if page.IsFatal(err) {
				return m.finish(s, err)
			}
			if current != u {
				log.Info().Str("page", label).Str("url", u).Msg("switching page")
				if err := m.navigate(ctx, u); err != nil {
					if page.IsFatal(err) || ctx.Err() != nil {
						return m.finish(s, err)
					}
					log.Error().Err(err).Str("url", u).Msg("navigation failed, skipping")
					continue
				}
				if err := m.settle(ctx); err != nil {
					return m.finish(s, err)
				}
			}

			log.Info().Str("page", label).Str("url", u).Msg("checking availability")
			ok, err := m.buyer.FindProductAndBuy(ctx, m.nav.Document(), t.Name, t.Size, fields, s)
			if err != nil {
				return m.finish(s, err)
			}
			if ok {
				if m.cfg.StopOnSuccess {
					log.Info().Str("product", t.Name).Msg("buy flow initiated, stopping")
					return true, nil
				}
				log.Info().Str("product", t.Name).Msg("buy flow initiated, keeping session open")
			}
		}

		if s.Initiated() {
			log.Debug().Int("cycle", cycle).Msg("purchase initiated, idling")
			if err := m.sleep(ctx, config.Duration(m.cfg.PostPurchaseIdle)); err != nil {
				return m.finish(s, err)
			}
			continue
		}

		delay := m.challenges.Jitter(m.cfg.RetryDelay, m.cfg.RetryJitter)
		log.Info().Int("cycle", cycle).Dur("retry_in", delay).Msg("not buyable yet, refreshing")
		if err := m.sleep(ctx, delay); err != nil {
			return m.finish(s, err)
		}
		if err := m.nav.Reload(ctx); err != nil {
			if page.IsFatal(err) || ctx.Err() != nil {
				return m.finish(s, err)
			}
			log.Error().Err(err).Msg("reload failed")
		}
		if err := m.settle(ctx); err != nil {
			return m.finish(s, err)
		}
	}
}

// finish turns a loop-ending error into Run's result.
func (m *Monitor) finish(s *flow.Session, err error) (bool, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.log.Info().Bool("initiated", s.Initiated()).Msg("monitoring stopped")
		return s.Initiated(), nil
	}
	m.log.Error().Err(err).Msg("browser lost, leaving monitor loop")
	return s.Initiated(), err
}

// settle waits for the page to render and handles any challenge on it.
func (m *Monitor) settle(ctx context.Context) error {
	if err := m.sleep(ctx, config.Duration(m.cfg.WaitForPage)); err != nil {
		return err
	}
	_, err := m.challenges.Check(ctx, m.nav.Document())
	return err
}

func (m *Monitor) navigate(ctx context.Context, u string) error {
	var err error
	for attempt := 1; attempt <= navAttempts; attempt++ {
		err = m.nav.Navigate(ctx, u)
		if err == nil || page.IsFatal(err) || ctx.Err() != nil || !isNetworkError(err) {
			return err
		}
		if attempt == navAttempts {
			break
		}
		delay := m.challenges.Jitter(1, 0.5)
		m.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("navigation network error")
		if serr := m.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}
