package cta

import (
	"context"
	"errors"
	"strings"

	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

const dismissCandidates = `button, a, [role="button"], [aria-label], [data-dismiss], [data-close], input[type="button"], input[type="submit"]`

const dialogLike = `dialog, [role="dialog"], [role="alertdialog"], [aria-modal="true"], [class*="modal"], [class*="overlay"], [class*="popup"], [class*="lightbox"]`

// bannerLike are containers whose text may carry consent wording.
const bannerLike = dialogLike + `, [class*="banner"], [id*="banner"], [class*="cookie"], [id*="cookie"], [class*="consent"], [id*="consent"]`

// consentDepth is how many ancestors are read for cookie/consent wording.
const consentDepth = 4

// DismissOverlays clicks every visible close affordance and consent-accept
// button and returns how many clicks went through. It never fails.
func DismissOverlays(ctx context.Context, scope page.Scope, log *logger.Logger) int {
	if log == nil {
		log = logger.Nop()
	}
	els, err := scope.Elements(dismissCandidates)
	if err != nil {
		return 0
	}

	count := 0
	for _, el := range els {
		if ctx.Err() != nil {
			break
		}
		if !page.IsVisible(el) || !dismissable(el) {
			continue
		}
		err := el.Click()
		if errors.Is(err, page.ErrIntercepted) {
			err = el.ForceClick()
		}
		if err != nil {
			log.Debug().Err(err).Msg("overlay click failed")
			continue
		}
		log.Debug().Str("element", page.TextOf(el)).Msg("dismissed overlay")
		count++
	}
	return count
}

// dismissable reports whether el closes a dialog or accepts a consent banner.
func dismissable(el page.Element) bool {
	desc := page.Describe(el)
	label := strings.ToLower(page.AttrOf(el, "aria-label"))

	if !interactive(el) {
		return closeLabel.MatchString(label)
	}
	if isCloseLabel(el) || strings.Contains(label, "close") || strings.Contains(label, "dismiss") {
		return true
	}
	if page.AttrOf(el, "data-dismiss") != "" || page.AttrOf(el, "data-close") != "" {
		return true
	}

	inDialog, _ := el.HasAncestor(dialogLike)
	markup := hyphens.ReplaceAllString(page.Markup(el), " ")
	if inDialog && (strings.Contains(markup, "close") || strings.Contains(markup, "dismiss")) {
		if !deny.MatchString(desc) && !buyAllow.MatchString(desc) {
			return true
		}
	}

	if consentAccept.MatchString(strings.ToLower(page.TextOf(el))) || consentAccept.MatchString(label) {
		return !purchaseControl(el) && inConsentContext(el, desc)
	}
	return false
}

// purchaseControl reports whether el would be ranked as a buy or order
// submit control. Those are never consent buttons.
func purchaseControl(el page.Element) bool {
	s := read(el)
	return s.typ == "submit" || submitScore(s) > 0 || buyAllow.MatchString(s.desc)
}

// inConsentContext reads consent wording from el itself, from ancestor ids
// and classes, and from ancestor text only inside a banner or dialog.
func inConsentContext(el page.Element, desc string) bool {
	if consentContext.MatchString(desc) {
		return true
	}
	inBanner, _ := el.HasAncestor(bannerLike)
	cur := el
	for i := 0; i < consentDepth; i++ {
		parent, err := cur.Parent()
		if err != nil {
			return false
		}
		if tag := parent.Tag(); tag == "body" || tag == "html" {
			return false
		}
		if consentContext.MatchString(strings.ToLower(page.AttrOf(parent, "id") + " " + page.AttrOf(parent, "class"))) {
			return true
		}
		if inBanner && consentContext.MatchString(strings.ToLower(page.TextOf(parent))) {
			return true
		}
		cur = parent
	}
	return false
}

func interactive(el page.Element) bool {
	switch el.Tag() {
	case "button", "a", "input":
		return true
	}
	return strings.EqualFold(page.AttrOf(el, "role"), "button")
}

// isCloseLabel reports whether the text, aria-label or title reads as a close control.
func isCloseLabel(el page.Element) bool {
	for _, s := range []string{page.TextOf(el), page.AttrOf(el, "aria-label"), page.AttrOf(el, "title")} {
		if s != "" && closeLabel.MatchString(strings.ToLower(s)) {
			return true
		}
	}
	return false
}
