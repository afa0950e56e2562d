package checkout

import (
	"context"
	"regexp"
	"strings"
	"time"

	"dropwatch/internal/config"
	"dropwatch/internal/cta"
	"dropwatch/internal/flow"
	"dropwatch/internal/page"
)

const formControls = `input, select, textarea`

// maxFrameDepth bounds the descent into nested payment iframes.
const maxFrameDepth = 2

var (
	skipTypes = map[string]bool{
		"hidden": true, "submit": true, "button": true, "checkbox": true, "radio": true,
		"image": true, "file": true, "password": true, "reset": true, "search": true,
	}

	shippingContext = regexp.MustCompile(`shipping|delivery|ground|standard|express|courier|postage`)
	shippingPrefer  = []string{"standard", "free", "ground"}

	cardTab    = regexp.MustCompile(`\bcredit( or |/| )?(debit )?card\b|\bdebit card\b|\bpay (with|by) card\b|\bcard payment\b|^\s*cards?\s*$`)
	cardTabNot = regexp.MustCompile(`paypal|klarna|afterpay|affirm|apple pay|google pay|gift card|crypto`)

	termsWords    = regexp.MustCompile(`terms|conditions|policy|agree|gdpr|consent`)
	marketingWord = regexp.MustCompile(`newsletter|marketing|offers|promotions|subscribe|news and`)

	paymentFrame = regexp.MustCompile(`stripe|braintree|adyen|checkout|cybersource|worldpay|square|card|payment|hosted ?fields?|cc-|secure`)

	confirmationWords = []string{"thank you", "order number", "order confirmed", "order placed", "confirmation", "payment successful"}
)

func fillable(el page.Element) bool {
	if !page.IsVisible(el) {
		return false
	}
	typ := strings.ToLower(page.AttrOf(el, "type"))
	return !skipTypes[typ]
}

// fill enters value into el: selects by option text then value, other
// controls by typing.
func fill(el page.Element, value string) error {
	if el.Tag() == "select" {
		return el.SelectOption(value)
	}
	return el.Fill(value)
}

func (p *Progressor) contactAndAddress(doc page.Document, fields FieldMap) (int, flow.Outcome) {
	els, err := doc.Elements(formControls)
	if err != nil {
		return 0, flow.Skipped
	}
	matched, filled := 0, 0
	for _, el := range els {
		if !fillable(el) {
			continue
		}
		f, ok := classify(identity(doc, el), false)
		if !ok || isCardField(f) {
			continue
		}
		value := fields[f]
		if value == "" {
			continue
		}
		matched++
		if err := fill(el, value); err != nil {
			p.log.Debug().Str("field", string(f)).Err(err).Msg("fill rejected")
			continue
		}
		filled++
		p.log.Debug().Str("field", string(f)).Msg("filled")
	}
	return filled, outcomeOf(matched, filled)
}

func outcomeOf(matched, done int) flow.Outcome {
	switch {
	case done > 0:
		return flow.Done
	case matched > 0:
		return flow.Failed
	}
	return flow.Skipped
}

func (p *Progressor) intermediateAdvance(ctx context.Context, doc page.Document) flow.Outcome {
	ctas := cta.AdvanceCTAs(doc)
	if len(ctas) == 0 {
		return flow.Skipped
	}
	if !p.clicker.Click(ctx, doc, ctas[0], "intermediate_advance") {
		return flow.Failed
	}
	_ = page.Sleep(ctx, config.Duration(p.cfg.PostCheckoutClickWait))
	return flow.Done
}

func (p *Progressor) shippingMethod(ctx context.Context, doc page.Document) flow.Outcome {
	els, err := doc.Elements(`input[type="radio"], [role="radio"], label, button`)
	if err != nil {
		return flow.Skipped
	}
	var best page.Element
	bestScore := 0
	for _, el := range els {
		desc := page.Describe(el) + " " + strings.ToLower(page.AttrOf(el, "name"))
		if !shippingContext.MatchString(desc) {
			continue
		}
		score := 0
		for _, kw := range shippingPrefer {
			if strings.Contains(desc, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = el, score
		}
	}
	if best == nil {
		return flow.Skipped
	}
	target := clickTarget(doc, best)
	if target == nil {
		return flow.Failed
	}
	if checked, _ := target.Checked(); checked && target.Tag() == "input" {
		return flow.Done
	}
	if !p.clicker.Click(ctx, doc, target, "shipping_method") {
		return flow.Failed
	}
	return flow.Done
}

// clickTarget returns el if visible, otherwise the visible label bound to it.
func clickTarget(doc page.Scope, el page.Element) page.Element {
	if page.IsVisible(el) {
		return el
	}
	if id := page.AttrOf(el, "id"); id != "" {
		if labels, err := doc.Elements(`label[for="` + id + `"]`); err == nil {
			for _, l := range labels {
				if page.IsVisible(l) {
					return l
				}
			}
		}
	}
	return nil
}

func (p *Progressor) paymentMethodTab(ctx context.Context, doc page.Document) flow.Outcome {
	els, err := doc.Elements(`[role="tab"], button, a, label, li, input[type="radio"]`)
	if err != nil {
		return flow.Skipped
	}
	for _, el := range els {
		desc := page.Describe(el)
		if !cardTab.MatchString(desc) || cardTabNot.MatchString(desc) {
			continue
		}
		if strings.EqualFold(page.AttrOf(el, "aria-selected"), "true") {
			return flow.Skipped
		}
		target := clickTarget(doc, el)
		if target == nil {
			continue
		}
		if p.clicker.Click(ctx, doc, target, "payment_method_tab") {
			return flow.Done
		}
		return flow.Failed
	}
	return flow.Skipped
}

func (p *Progressor) cardFields(doc page.Document, fields FieldMap) (int, flow.Outcome) {
	if !fields.HasCard() {
		return 0, flow.Skipped
	}
	matched, filled := p.fillCard(doc, fields, false)
	fm, ff := p.fillFrames(doc, fields, 0)
	return filled + ff, outcomeOf(matched+fm, filled+ff)
}

// fillCard fills card inputs of one document. Inside a payment frame every
// control belongs to the card form.
func (p *Progressor) fillCard(doc page.Document, fields FieldMap, inFrame bool) (matched, filled int) {
	els, err := doc.Elements(formControls)
	if err != nil {
		return 0, 0
	}
	for _, el := range els {
		if !fillable(el) {
			continue
		}
		f, ok := classify(identity(doc, el), inFrame)
		if !ok || !isCardField(f) {
			continue
		}
		value := fields[f]
		if value == "" {
			continue
		}
		matched++
		if err := fillCardValue(el, f, value); err != nil {
			p.log.Debug().Str("field", string(f)).Bool("frame", inFrame).Err(err).Msg("card fill rejected")
			continue
		}
		filled++
		p.log.Debug().Str("field", string(f)).Bool("frame", inFrame).Msg("filled")
	}
	return matched, filled
}

func fillCardValue(el page.Element, f Field, value string) error {
	if f == cardExpYear && el.Tag() == "select" {
		// year selects often list four digits
		if err := el.SelectOption(value); err == nil {
			return nil
		}
		return el.SelectOption("20" + value)
	}
	if f == CardNumber {
		value = strings.ReplaceAll(value, " ", "")
	}
	return fill(el, value)
}

func (p *Progressor) fillFrames(doc page.Document, fields FieldMap, depth int) (matched, filled int) {
	if depth >= maxFrameDepth {
		return 0, 0
	}
	frames, err := doc.Elements("iframe")
	if err != nil {
		return 0, 0
	}
	for _, fr := range frames {
		hint := strings.ToLower(strings.Join([]string{
			page.AttrOf(fr, "src"), page.AttrOf(fr, "name"), page.AttrOf(fr, "title"), page.AttrOf(fr, "id"),
		}, " "))
		if !paymentFrame.MatchString(hint) {
			continue
		}
		inner, err := fr.Frame()
		if err != nil {
			p.log.Debug().Err(err).Str("frame", hint).Msg("cannot enter frame")
			continue
		}
		m, f := p.fillCard(inner, fields, true)
		nm, nf := p.fillFrames(inner, fields, depth+1)
		matched += m + nm
		filled += f + nf
	}
	return matched, filled
}

func (p *Progressor) termsAcceptance(ctx context.Context, doc page.Document) flow.Outcome {
	boxes, err := doc.Elements(`input[type="checkbox"], [role="checkbox"]`)
	if err != nil {
		return flow.Skipped
	}
	matched, ticked := 0, 0
	for _, box := range boxes {
		text := strings.ToLower(identity(doc, box) + " " + page.Describe(box))
		if parent, err := box.Parent(); err == nil && parent.Tag() == "label" {
			text += " " + strings.ToLower(page.TextOf(parent))
		}
		if !termsWords.MatchString(text) || marketingWord.MatchString(text) {
			continue
		}
		matched++
		if checked, _ := box.Checked(); checked || strings.EqualFold(page.AttrOf(box, "aria-checked"), "true") {
			ticked++
			continue
		}
		target := clickTarget(doc, box)
		if target == nil {
			continue
		}
		if p.clicker.Click(ctx, doc, target, "terms") {
			ticked++
		}
	}
	return outcomeOf(matched, ticked)
}

func (p *Progressor) finalSubmit(ctx context.Context, doc page.Document) flow.Outcome {
	el := cta.SubmitCTA(doc)
	if el == nil {
		p.log.Info().Msg("no final submit control found")
		return flow.Skipped
	}
	if p.cfg.DryRun {
		p.log.Warn().Str("control", page.TextOf(el)).Msg("dry run: not submitting order")
		return flow.Skipped
	}
	if !p.clicker.Click(ctx, doc, el, "final_submit") {
		return flow.Failed
	}
	return flow.Done
}

func (p *Progressor) confirmationWait(ctx context.Context, doc page.Document) flow.Outcome {
	deadline := time.Now().Add(config.Duration(p.cfg.OrderSuccessTimeout))
	poll := config.Duration(p.cfg.ConfirmationPoll)
	if poll <= 0 {
		poll = time.Second
	}
	for {
		if text, err := doc.Text(); err == nil {
			lower := strings.ToLower(text)
			for _, w := range confirmationWords {
				if strings.Contains(lower, w) {
					p.log.Info().Str("signal", w).Msg("order confirmation observed")
					return flow.Done
				}
			}
		}
		if time.Now().After(deadline) {
			break
		}
		if err := page.Sleep(ctx, poll); err != nil {
			break
		}
	}
	p.log.Warn().Msg("order not confirmed before timeout")
	return flow.Failed
}
