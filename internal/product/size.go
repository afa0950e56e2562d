package product

import (
	"context"
	"regexp"
	"strings"

	"dropwatch/internal/cta"
	"dropwatch/internal/page"
)

// Size controls are tried before generic blocks of the same tier.
const (
	sizeControls = `button, [role="button"], [role="radio"], [role="option"], input[type="radio"], label, a`
	sizeBlocks   = `li, div, span`
)

// maxSizeText bounds the text of an element considered a size swatch.
const maxSizeText = 24

var sizeAttrs = []string{"aria-label", "data-size", "data-value", "value", "title"}

// sizePattern matches token as a whole size: "10" never matches "10.5".
func sizePattern(token string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^\w.])` + regexp.QuoteMeta(token) + `([^\w.]|$)`)
}

// SelectSize clicks the control for size. Exact text wins over a
// word-bounded match in short text, which wins over a labelling attribute;
// a size <select> is the last resort. An empty size is a no-op.
func SelectSize(ctx context.Context, doc page.Scope, size string, clicker *cta.Clicker) bool {
	token := strings.ToLower(strings.TrimSpace(size))
	if token == "" {
		return false
	}
	if clicker == nil {
		clicker = &cta.Clicker{}
	}
	bounded := sizePattern(token)

	var els []page.Element
	for _, sel := range []string{sizeControls, sizeBlocks} {
		if found, err := doc.Elements(sel); err == nil {
			els = append(els, found...)
		}
	}

	tiers := []func(el page.Element) bool{
		func(el page.Element) bool {
			return strings.ToLower(page.TextOf(el)) == token
		},
		func(el page.Element) bool {
			text := strings.ToLower(page.TextOf(el))
			return len(text) <= maxSizeText && bounded.MatchString(text)
		},
		func(el page.Element) bool {
			for _, a := range sizeAttrs {
				if v := strings.ToLower(page.AttrOf(el, a)); v != "" && bounded.MatchString(v) {
					return true
				}
			}
			return false
		},
	}
	for _, match := range tiers {
		for _, el := range els {
			if !match(el) || !selectable(el) {
				continue
			}
			if clicker.Click(ctx, doc, el, "select_size:"+token) {
				return true
			}
		}
	}
	return selectSizeOption(doc, size)
}

func selectable(el page.Element) bool {
	if !page.IsVisible(el) || cta.Disabled(el) || cta.Denied(el) {
		return false
	}
	cls := strings.ToLower(page.AttrOf(el, "class"))
	return !strings.Contains(cls, "unavailable") && !strings.Contains(cls, "sold-out")
}

func selectSizeOption(doc page.Scope, size string) bool {
	selects, err := doc.Elements("select")
	if err != nil {
		return false
	}
	for _, s := range selects {
		ident := strings.ToLower(page.AttrOf(s, "name") + " " + page.AttrOf(s, "id") + " " + page.AttrOf(s, "aria-label"))
		if !strings.Contains(ident, "size") || !page.IsVisible(s) {
			continue
		}
		if err := s.SelectOption(strings.TrimSpace(size)); err == nil {
			return true
		}
	}
	return false
}
