package product

import (
	"context"
	"net/url"
	"strings"
	"time"

	"dropwatch/internal/checkout"
	"dropwatch/internal/config"
	"dropwatch/internal/cta"
	"dropwatch/internal/flow"
	"dropwatch/internal/fuzzy"
	"dropwatch/internal/logger"
	"dropwatch/internal/page"
)

// Checkout is what the initiator hands over to once a buy CTA was clicked.
type Checkout interface {
	ProceedToCheckout(ctx context.Context, doc page.Document) flow.Outcome
	Run(ctx context.Context, doc page.Document, fields checkout.FieldMap, s *flow.Session) checkout.Result
}

type Initiator struct {
	cfg      *config.Config
	log      *logger.Logger
	clicker  *cta.Clicker
	checkout Checkout
}

func NewInitiator(cfg *config.Config, log *logger.Logger, co Checkout) *Initiator {
	if log == nil {
		log = logger.Nop()
	}
	clicker := &cta.Clicker{
		Log:       log,
		Settle:    config.Duration(cfg.PostClickDelay),
		Highlight: cfg.DebugMode,
	}
	if co == nil {
		co = checkout.NewProgressor(cfg, log, clicker)
	}
	return &Initiator{cfg: cfg, log: log, clicker: clicker, checkout: co}
}

// FindProductAndBuy scans doc for name and clicks a buy CTA for it. It
// reports whether any buy, add or checkout CTA was clicked; checkout is
// attempted afterwards but does not affect the result. The error is
// non-nil only when ctx ends or the browser is lost.
func (in *Initiator) FindProductAndBuy(ctx context.Context, doc page.Document, name, size string, fields checkout.FieldMap, s *flow.Session) (bool, error) {
	if s == nil {
		s = flow.NewSession()
	}
	log := in.log.With("session", s.ID)
	target := strings.ToLower(strings.TrimSpace(name))
	log.Info().Str("product", name).Str("size", size).Msg("starting search")

	if in.cfg.DismissBanners {
		if n := cta.DismissOverlays(ctx, doc, log); n > 0 {
			log.Info().Int("dismissed", n).Msg("cleared overlays")
		}
	}

	passes := in.cfg.MaxScrolls
	if passes < 1 {
		passes = 1
	}
	tracker := NewTracker(target)

	for pass := 1; pass <= passes; pass++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if _, err := doc.URL(); page.IsFatal(err) {
			return false, err
		}

		tracker.Scan(doc, in.cfg.ScanLimit)
		best := tracker.Best()
		ev := log.Info().Int("pass", pass).Int("of", passes)
		if best != nil {
			ev = ev.Float64("best", best.Score)
		}
		ev.Msg("scan pass")

		if best != nil && best.Score >= in.cfg.MinMatchScore {
			s.Advance(flow.Matched)
			log.Info().Float64("score", best.Score).Str("card", excerpt(best.Text)).Msg("possible match")
			if in.buyFromMatch(ctx, doc, best, size, log) {
				in.afterClick(ctx, doc, fields, s, log)
				return true, nil
			}
		} else if best != nil {
			log.Debug().Float64("best", best.Score).Float64("min", in.cfg.MinMatchScore).Msg("below threshold")
		}

		if in.globalAllowed(doc, target) && in.globalBuy(ctx, doc, size, log) {
			in.afterClick(ctx, doc, fields, s, log)
			return true, nil
		}

		if pass == passes {
			break
		}
		_ = doc.ScrollBy(scrollStep)
		if err := page.Sleep(ctx, config.Duration(in.cfg.ScrollDelay)); err != nil {
			return false, err
		}
	}

	log.Info().Msg("no buy CTA clicked")
	return false, nil
}

// buyFromMatch tries the matched card's own CTA, then a CTA next to it,
// then its detail page, then any CTA on the page.
func (in *Initiator) buyFromMatch(ctx context.Context, doc page.Document, m *Match, size string, log *logger.Logger) bool {
	card := m.Element
	_ = card.ScrollIntoView()
	if in.cfg.DebugMode {
		_ = card.Highlight("cyan", time.Second)
	}

	return flow.FirstDone(
		func() flow.Outcome { return in.clickFirst(ctx, doc, cta.BuyCTAs(card), "inline_buy") },
		func() flow.Outcome { return in.nearBuy(ctx, doc, card) },
		func() flow.Outcome { return in.detailPageBuy(ctx, doc, card, size, log) },
		func() flow.Outcome { return in.clickFirst(ctx, doc, cta.BuyCTAs(doc), "document_buy") },
	) == flow.Done
}

func (in *Initiator) clickFirst(ctx context.Context, doc page.Scope, ctas []page.Element, desc string) flow.Outcome {
	if len(ctas) == 0 {
		return flow.Skipped
	}
	if in.clicker.Click(ctx, doc, ctas[0], desc) {
		return flow.Done
	}
	return flow.Failed
}

// nearBuy walks up from the card. An ancestor holding more than one buy
// CTA spans several products and ends the walk.
func (in *Initiator) nearBuy(ctx context.Context, doc page.Document, card page.Element) flow.Outcome {
	cur := card
	for depth := 0; depth < in.cfg.NearAncestorDepth; depth++ {
		parent, err := cur.Parent()
		if err != nil {
			return flow.Skipped
		}
		if tag := parent.Tag(); tag == "body" || tag == "html" {
			return flow.Skipped
		}
		switch ctas := cta.BuyCTAs(parent); len(ctas) {
		case 0:
		case 1:
			return in.clickFirst(ctx, doc, ctas, "near_buy")
		default:
			return flow.Skipped
		}
		cur = parent
	}
	return flow.Skipped
}

// detailPageBuy opens the product detail page from the card's first
// absolute link or its image, selects the size and clicks the page's buy CTA.
func (in *Initiator) detailPageBuy(ctx context.Context, doc page.Document, card page.Element, size string, log *logger.Logger) flow.Outcome {
	opener, how := detailOpener(doc, card)
	if opener == nil {
		return flow.Skipped
	}
	log.Info().Str("via", how).Msg("opening product page")
	if !in.clicker.Click(ctx, doc, opener, "open_pdp_"+how) {
		return flow.Failed
	}
	if err := page.Sleep(ctx, config.Duration(in.cfg.WaitForPage)); err != nil {
		return flow.Failed
	}

	if size != "" {
		if SelectSize(ctx, doc, size, in.clicker) {
			log.Info().Str("size", size).Msg("size selected")
		} else {
			log.Info().Str("size", size).Msg("size not selectable")
		}
	}
	o := in.clickFirst(ctx, doc, cta.BuyCTAs(doc), "pdp_add_to_cart")
	if o == flow.Skipped {
		log.Info().Msg("no buy CTA on product page")
		return flow.Failed
	}
	return o
}

func detailOpener(doc page.Document, card page.Element) (page.Element, string) {
	base, _ := doc.URL()
	if anchors, err := card.Elements("a[href]"); err == nil {
		for _, a := range anchors {
			if absoluteHTTP(base, page.AttrOf(a, "href")) {
				return a, "anchor"
			}
		}
	}
	if imgs, err := card.Elements("img"); err == nil && len(imgs) > 0 {
		return imgs[0], "image"
	}
	return nil, ""
}

// absoluteHTTP reports whether href resolves against base to an http(s) URL.
func absoluteHTTP(base, href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return false
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	return ref.Scheme == "http" || ref.Scheme == "https"
}

// globalAllowed gates the page-wide buy path. Unless it is always on, every
// token of the target must occur in the page text.
func (in *Initiator) globalAllowed(doc page.Document, target string) bool {
	if in.cfg.AllowGlobalCTAAlways {
		return true
	}
	if !in.cfg.AllowGlobalCTAWhenNameFound {
		return false
	}
	text, err := doc.Text()
	return err == nil && fuzzy.ContainsAllTokens(text, target)
}

func (in *Initiator) globalBuy(ctx context.Context, doc page.Document, size string, log *logger.Logger) bool {
	ctas := cta.BuyCTAs(doc)
	if len(ctas) == 0 {
		return false
	}
	if in.cfg.SelectSizeBeforeGlobal && size != "" {
		SelectSize(ctx, doc, size, in.clicker)
		// the size click may re-render the buy button
		ctas = cta.BuyCTAs(doc)
	}
	log.Info().Msg("name present on page, trying page-wide buy CTA")
	return in.clickFirst(ctx, doc, ctas, "global_buy") == flow.Done
}

func (in *Initiator) afterClick(ctx context.Context, doc page.Document, fields checkout.FieldMap, s *flow.Session, log *logger.Logger) {
	s.MarkInitiated()
	log.Info().Msg("purchase initiated")

	if o := in.checkout.ProceedToCheckout(ctx, doc); o == flow.Failed {
		log.Warn().Msg("checkout CTA could not be clicked")
	}
	if len(fields) == 0 {
		return
	}
	res := in.checkout.Run(ctx, doc, fields, s)
	if !res.Confirmed {
		log.Warn().Bool("submitted", res.Submitted).Msg("order not confirmed")
	}
}

func excerpt(s string) string {
	s = strings.ReplaceAll(s, "\n", " | ")
	if r := []rune(s); len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return s
}
