// Package checkout drives a cart through a site's checkout: it fills
// contact, address and card fields (including payment iframes), moves
// through intermediate screens, accepts terms, submits and watches for a
// confirmation. Every step is best-effort.
package checkout

import (
	"context"
	"net/url"
	"strings"
	"time"

	"dropwatch/internal/config"
	"dropwatch/internal/cta"
	"dropwatch/internal/flow"
	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

// Step names as reported in Result.Steps.
const (
	StepContactAndAddress   = "contact_and_address"
	StepIntermediateAdvance = "intermediate_advance"
	StepShippingMethod      = "shipping_method"
	StepPaymentMethodTab    = "payment_method_tab"
	StepCardFields          = "card_fields"
	StepTermsAcceptance     = "terms_acceptance"
	StepOverlayClear        = "overlay_clear"
	StepFinalSubmit         = "final_submit"
	StepConfirmationWait    = "confirmation_wait"
)

const checkoutPoll = 500 * time.Millisecond

// Result summarises one progression.
type Result struct {
	Steps     []flow.StepResult
	Filled    int
	Submitted bool
	Confirmed bool
}

// Outcome returns the outcome recorded for the named step, or Skipped.
func (r Result) Outcome(step string) flow.Outcome {
	for _, s := range r.Steps {
		if s.Name == step {
			return s.Outcome
		}
	}
	return flow.Skipped
}

type Progressor struct {
	cfg     *config.Config
	log     *logger.Logger
	clicker *cta.Clicker
}

func NewProgressor(cfg *config.Config, log *logger.Logger, clicker *cta.Clicker) *Progressor {
	if log == nil {
		log = logger.Nop()
	}
	if clicker == nil {
		clicker = &cta.Clicker{Log: log, Settle: config.Duration(cfg.PostClickDelay)}
	}
	return &Progressor{cfg: cfg, log: log, clicker: clicker}
}

// ProceedToCheckout polls for a checkout CTA until checkout_cta_timeout and
// clicks the first one found.
func (p *Progressor) ProceedToCheckout(ctx context.Context, doc page.Document) flow.Outcome {
	if onCheckoutPage(doc) {
		p.log.Debug().Msg("already on a checkout page")
		return flow.Skipped
	}

	deadline := time.Now().Add(config.Duration(p.cfg.CheckoutCTATimeout))
	for {
		if ctas := cta.CheckoutCTAs(doc); len(ctas) > 0 {
			if !p.clicker.Click(ctx, doc, ctas[0], "proceed_to_checkout") {
				return flow.Failed
			}
			_ = page.Sleep(ctx, config.Duration(p.cfg.PostCheckoutClickWait))
			return flow.Done
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		if err := page.Sleep(ctx, checkoutPoll); err != nil {
			break
		}
	}
	p.log.Info().Msg("no checkout CTA appeared")
	return flow.Skipped
}

func onCheckoutPage(doc page.Document) bool {
	raw, err := doc.URL()
	if err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), "checkout")
}

// Run performs the checkout steps in order. No step aborts the chain; only
// cancellation or a lost browser ends it early.
func (p *Progressor) Run(ctx context.Context, doc page.Document, fields FieldMap, s *flow.Session) Result {
	var res Result
	if s != nil {
		s.Advance(flow.CheckoutInProgress)
	}

	stop := func() bool {
		if ctx.Err() != nil {
			return true
		}
		_, err := doc.URL()
		return page.IsFatal(err)
	}

	advance := flow.Step{Name: StepIntermediateAdvance, Run: func() flow.Outcome { return p.intermediateAdvance(ctx, doc) }}

	res.Steps = flow.Chain(stop,
		flow.Step{Name: StepContactAndAddress, Run: func() flow.Outcome {
			n, o := p.contactAndAddress(doc, fields)
			res.Filled += n
			return o
		}},
		advance,
		flow.Step{Name: StepShippingMethod, Run: func() flow.Outcome { return p.shippingMethod(ctx, doc) }},
		advance,
		flow.Step{Name: StepPaymentMethodTab, Run: func() flow.Outcome { return p.paymentMethodTab(ctx, doc) }},
		flow.Step{Name: StepCardFields, Run: func() flow.Outcome {
			n, o := p.cardFields(doc, fields)
			res.Filled += n
			return o
		}},
		flow.Step{Name: StepTermsAcceptance, Run: func() flow.Outcome { return p.termsAcceptance(ctx, doc) }},
		advance,
		flow.Step{Name: StepOverlayClear, Run: func() flow.Outcome {
			if cta.DismissOverlays(ctx, doc, p.log) > 0 {
				return flow.Done
			}
			return flow.Skipped
		}},
		flow.Step{Name: StepFinalSubmit, Run: func() flow.Outcome {
			o := p.finalSubmit(ctx, doc)
			if o == flow.Done {
				res.Submitted = true
				if s != nil {
					s.Advance(flow.Submitted)
				}
			}
			return o
		}},
		flow.Step{Name: StepConfirmationWait, Run: func() flow.Outcome {
			if !res.Submitted {
				return flow.Skipped
			}
			o := p.confirmationWait(ctx, doc)
			if o == flow.Done {
				res.Confirmed = true
				if s != nil {
					s.Advance(flow.Confirmed)
				}
			}
			return o
		}},
	)

	steps := make([]string, 0, len(res.Steps))
	for _, st := range res.Steps {
		steps = append(steps, st.Name+"="+st.Outcome.String())
	}
	p.log.Info().
		Int("filled", res.Filled).
		Bool("submitted", res.Submitted).
		Bool("confirmed", res.Confirmed).
		Str("steps", strings.Join(steps, " ")).
		Msg("checkout progression finished")
	return res
}
