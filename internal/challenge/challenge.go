// Package challenge recognises anti-automation pages and waits them out.
// It never interacts with a challenge: the only responses are pausing for
// a human, polling until the page clears and backing off.
package challenge

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/config"
	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

type Kind int

const (
	None Kind = iota
	// Interstitial is a browser-verification page shown instead of the site.
	Interstitial
	Captcha
)

func (k Kind) String() string {
	switch k {
	case Interstitial:
		return "interstitial"
	case Captcha:
		return "captcha"
	}
	return "none"
}

var interstitialSignals = []string{
	"checking your browser before accessing",
	"just a moment",
	"cf-browser-verification",
	"attention required",
	"please stand by",
}

// captchaWidgets are the rendered widget containers of common providers.
const captchaWidgets = `.g-recaptcha, .h-captcha, #cf-chl-widget, [id^="cf-chl-widget"], .cf-turnstile, ` +
	`iframe[src*="recaptcha/api2/anchor"], iframe[src*="hcaptcha.com"], iframe[src*="challenges.cloudflare.com"]`

// captchaNotices are the badge texts invisible widgets are required to show.
var captchaNotices = regexp.MustCompile(`(this (site|page|form) is )?protected by (re|h)captcha`)

// Detect inspects the title, markup and visible text of doc. Interstitials
// take precedence over captchas. Read failures count as no challenge.
func Detect(doc page.Document) Kind {
	title, _ := doc.Title()
	title = strings.ToLower(title)
	markup, _ := doc.HTML()
	markup = strings.ToLower(markup)

	for _, s := range interstitialSignals {
		if strings.Contains(title, s) || strings.Contains(markup, s) {
			return Interstitial
		}
	}

	if widgets, err := doc.Elements(captchaWidgets); err == nil {
		for _, w := range widgets {
			// invisible recaptcha scores silently and never blocks
			if strings.EqualFold(page.AttrOf(w, "data-size"), "invisible") {
				continue
			}
			if page.IsVisible(w) {
				return Captcha
			}
		}
	}
	text, _ := doc.Text()
	text = captchaNotices.ReplaceAllString(strings.ToLower(text), "")
	if strings.Contains(title, "captcha") || strings.Contains(text, "captcha") {
		return Captcha
	}
	return None
}

// Handler applies the configured challenge strategy.
type Handler struct {
	cfg *config.Config
	log *logger.Logger

	// Sleep is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	rand *rand.Rand
}

func NewHandler(cfg *config.Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		cfg:   cfg,
		log:   log,
		Sleep: page.Sleep,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the backoff jitter reproducible.
func (h *Handler) Seed(seed int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rand = rand.New(rand.NewSource(seed))
}

// Check detects a challenge on doc and handles it. It reports the kind seen.
func (h *Handler) Check(ctx context.Context, doc page.Document) (Kind, error) {
	kind := Detect(doc)
	if kind == None {
		return None, nil
	}
	return kind, h.Handle(ctx, doc, kind)
}

// Handle waits according to challenge_strategy. Unknown strategies pause.
// The only error is ctx ending.
func (h *Handler) Handle(ctx context.Context, doc page.Document, kind Kind) error {
	if kind == None {
		return nil
	}
	h.log.Warn().Str("kind", kind.String()).Str("strategy", h.cfg.ChallengeStrategy).Msg("anti-automation challenge detected")

	switch h.cfg.ChallengeStrategy {
	case config.StrategyWait:
		return h.wait(ctx, doc)
	case config.StrategyBackoff:
		d := h.Jitter(h.cfg.RetryDelay, h.cfg.RetryJitter)
		h.log.Info().Dur("delay", d).Msg("backing off before next attempt")
		return h.Sleep(ctx, d)
	default:
		d := config.Duration(h.cfg.ChallengePauseSeconds)
		h.log.Info().Dur("pause", d).Msg("pausing for manual resolution")
		return h.Sleep(ctx, d)
	}
}

func (h *Handler) wait(ctx context.Context, doc page.Document) error {
	total := config.Duration(h.cfg.ChallengeWaitTotal)
	poll := config.Duration(h.cfg.ChallengeWaitPoll)
	if poll <= 0 {
		poll = time.Second
	}
	for waited := time.Duration(0); waited < total; waited += poll {
		if err := h.Sleep(ctx, poll); err != nil {
			return err
		}
		if Detect(doc) == None {
			h.log.Info().Dur("waited", waited+poll).Msg("challenge cleared")
			return nil
		}
	}
	h.log.Warn().Dur("waited", total).Msg("challenge still present after wait")
	return nil
}

// Jitter returns base seconds shifted by a uniform offset in
// [-jitter, +jitter] seconds, never less than one second.
func (h *Handler) Jitter(base, jitter float64) time.Duration {
	h.mu.Lock()
	offset := 0.0
	if jitter > 0 {
		offset = (h.rand.Float64()*2 - 1) * jitter
	}
	h.mu.Unlock()

	d := config.Duration(base + offset)
	if d < time.Second {
		d = time.Second
	}
	return d
}
