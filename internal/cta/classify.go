// Package cta classifies calls-to-action on a page, clears overlays that
// block them and clicks them with a single dismiss-and-force retry.
package cta

import (
	"regexp"
	"sort"
	"strings"

	"dropwatch/internal/page"
)

// Kind is the purchase intent of an interactive element.
type Kind int

const (
	Unclassified Kind = iota
	Buy
	Checkout
	Submit
	Dismiss
	Deny
)

func (k Kind) String() string {
	switch k {
	case Buy:
		return "buy"
	case Checkout:
		return "checkout"
	case Submit:
		return "submit"
	case Dismiss:
		return "dismiss"
	case Deny:
		return "deny"
	}
	return "unclassified"
}

// signals is what the classifier reads from one element.
type signals struct {
	desc   string // text and labelling attributes, lower case
	markup string // outer HTML with hyphens and underscores as spaces
	open   string // the opening tag of markup
	typ    string
}

func read(el page.Element) signals {
	s := signals{
		desc:   page.Describe(el),
		markup: hyphens.ReplaceAllString(page.Markup(el), " "),
		typ:    strings.ToLower(page.AttrOf(el, "type")),
	}
	s.open = openingTag(s.markup)
	return s
}

func openingTag(markup string) string {
	if i := strings.IndexByte(markup, '>'); i > 0 {
		return markup[:i]
	}
	return markup
}

func (s signals) matches(re *regexp.Regexp) bool {
	return re.MatchString(s.desc) || re.MatchString(s.markup)
}

func (s signals) denied() bool {
	return deny.MatchString(s.desc)
}

// Classify labels a single element. Deny wins over every allow pattern.
func Classify(el page.Element) Kind {
	s := read(el)
	switch {
	case s.denied():
		return Deny
	case isCloseLabel(el):
		return Dismiss
	case s.matches(buyOnly):
		return Buy
	case s.matches(checkoutAllow):
		return Checkout
	case submitScore(s) > 0:
		return Submit
	}
	return Unclassified
}

// eligible reports whether el may be offered as a CTA at all.
func eligible(el page.Element) bool {
	if !page.IsVisible(el) || Disabled(el) {
		return false
	}
	inFooter, err := el.HasAncestor(footerLike)
	return err == nil && !inFooter
}

// Disabled reports whether el is disabled natively or through aria-disabled.
func Disabled(el page.Element) bool {
	if strings.EqualFold(page.AttrOf(el, "aria-disabled"), "true") {
		return true
	}
	return disabledAttr.MatchString(openingTag(page.Markup(el)))
}

// Denied reports whether el reads as a decoy: notify-me, sold out, help or
// payment-information text.
func Denied(el page.Element) bool {
	return deny.MatchString(page.Describe(el))
}

func collect(scope page.Scope, allow *regexp.Regexp) []page.Element {
	els, err := scope.Elements(Interactive)
	if err != nil {
		return nil
	}
	var out []page.Element
	for _, el := range els {
		if !eligible(el) {
			continue
		}
		s := read(el)
		if s.denied() || !s.matches(allow) {
			continue
		}
		out = append(out, el)
	}
	return out
}

// BuyCTAs returns the add/buy/checkout elements in scope, in document order.
func BuyCTAs(scope page.Scope) []page.Element {
	return collect(scope, buyAllow)
}

// CheckoutCTAs returns checkout and view-cart elements in scope, in document order.
func CheckoutCTAs(scope page.Scope) []page.Element {
	return collect(scope, checkoutAllow)
}

// AdvanceCTAs returns continue/next/review style elements that move a
// multi-step checkout forward.
func AdvanceCTAs(scope page.Scope) []page.Element {
	var out []page.Element
	for _, el := range collect(scope, advanceAllow) {
		if submitPhrase.MatchString(page.Describe(el)) {
			continue
		}
		out = append(out, el)
	}
	return out
}

// Ranked is a submit candidate with its score.
type Ranked struct {
	Element page.Element
	Score   int
}

func submitScore(s signals) int {
	if submitDeny.MatchString(s.desc) {
		return 0
	}
	score := 0
	switch {
	case submitHint.MatchString(s.open):
		score += 2
	case s.typ == "submit" && advanceAllow.MatchString(s.desc):
		// a typed "Continue" is an intermediate step, not the order button
	case s.typ == "submit":
		score += 2
	}
	if submitPhrase.MatchString(s.desc) {
		score++
	}
	return score
}

// SubmitCandidates ranks the final-submit controls in scope, best first;
// equal scores keep document order.
func SubmitCandidates(scope page.Scope) []Ranked {
	els, err := scope.Elements(Interactive)
	if err != nil {
		return nil
	}
	var out []Ranked
	for _, el := range els {
		if !eligible(el) {
			continue
		}
		s := read(el)
		if s.denied() {
			continue
		}
		if score := submitScore(s); score > 0 {
			out = append(out, Ranked{Element: el, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SubmitCTA returns the top-ranked final-submit control, or nil.
func SubmitCTA(scope page.Scope) page.Element {
	ranked := SubmitCandidates(scope)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0].Element
}
