package cta

import "regexp"

// Interactive matches elements a shopper can activate.
const Interactive = `button, a, [role="button"], input[type="submit"], input[type="button"]`

// footerLike matches site footers. Card footers (".card-footer") are not footers.
const footerLike = `footer, [role="contentinfo"], #footer, .footer, .site-footer, .page-footer, .global-footer, [id^="footer"], [class^="footer"]`

var (
	buyAllow = regexp.MustCompile(`\badd to (bag|cart|basket)\b|\bbuy\b|\bcheck ?out\b|\bpurchase\b|\baddtocart\b`)

	// buyOnly are the buy phrases that are not also checkout phrases.
	buyOnly = regexp.MustCompile(`\badd to (bag|cart|basket)\b|\bbuy\b|\bpurchase\b|\baddtocart\b`)

	checkoutAllow = regexp.MustCompile(`\bcheck ?out\b|\bview (cart|bag|basket)\b|\bgo to (cart|bag|basket)\b|\bproceed\b|\bcontinue to (checkout|payment|shipping)\b`)

	submitPhrase = regexp.MustCompile(`\bplace (my )?order\b|\b(complete|submit|confirm) (my )?order\b|\bcomplete purchase\b|\bbuy now\b|\bpay now\b|\bpay \$|\bpay [0-9]`)

	// submitHint matches order/submit hints in (hyphen-normalised) markup.
	submitHint = regexp.MustCompile(`\bplace ?order\b|\bsubmit ?order\b|\bcomplete ?order\b|\border ?submit\b|\bcheckout ?submit\b|\bsubmit ?payment\b|\bpay ?button\b`)

	advanceAllow = regexp.MustCompile(`\bcontinue\b|\bnext\b|\breview\b|\bproceed\b|\b(go|continue) to (shipping|payment|delivery)\b|\bsave (and|&) continue\b`)

	deny = regexp.MustCompile(words(
		`notify me`, `notify when`, `email me when`, `sold ?out`, `out of stock`, `coming soon`,
		`unavailable`, `no longer available`, `waitlist`, `wait list`,
		`help`, `faq`, `privacy`, `terms`, `cookie policy`, `returns policy`, `size guide`,
		`payment options`, `pay in [0-9]`, `pay later`, `klarna`, `afterpay`, `affirm`, `installments?`,
		`learn more`, `wish ?list`, `save for later`, `continue shopping`,
	))

	// submitDeny rules out typed submits that are not the order button.
	submitDeny = regexp.MustCompile(words(
		`search`, `subscribe`, `newsletter`, `sign ?up`, `sign ?in`, `log ?in`, `apply`, `coupon`, `promo`, `gift card`,
	))

	closeLabel = regexp.MustCompile(`^\s*(close|dismiss|no,? thanks|not now|maybe later|skip|x|×|✕|✖)\s*$|\bclose (dialog|modal|popup|banner|window)\b`)

	consentAccept = regexp.MustCompile(`\baccept( all)?( cookies)?\b|\bagree\b|\ballow( all)?( cookies)?\b|\bgot it\b|^\s*ok(ay)?\s*$|\bi understand\b`)

	consentContext = regexp.MustCompile(`cookie|consent|privacy|gdpr`)

	hyphens = regexp.MustCompile(`[-_]+`)

	disabledAttr = regexp.MustCompile(`\sdisabled(\s|=|/|$)`)
)

// words joins alternatives into a word-bounded alternation.
func words(alts ...string) string {
	out := `\b(`
	for i, a := range alts {
		if i > 0 {
			out += "|"
		}
		out += a
	}
	return out + `)\b`
}
