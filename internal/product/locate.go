// Package product finds a named product on an unknown storefront page and
// starts a purchase: it extracts card-like blocks, fuzzy-matches them
// against the target name across scroll passes, picks a size and clicks
// the most specific buy CTA it can reach.
package product

import (
	"context"
	"strings"
	"time"

	"dropwatch/internal/fuzzy"
	"dropwatch/internal/page"
)

// DefaultScanLimit bounds how many blocks one extraction inspects.
const DefaultScanLimit = 400

const blockSelector = `body div, body article, body section, body li`

// scrollStep is the fraction of the viewport scrolled between passes.
const scrollStep = 0.9

// Candidate is a block that looks like a product tile. It is only valid
// for the pass that produced it.
type Candidate struct {
	Element page.Element
	Text    string
}

// Match is a candidate with its similarity to the target name.
type Match struct {
	Candidate
	Score float64
}

// ExtractCandidates returns the blocks under body with non-empty text
// that hold an image or more than one line of text, in document order.
// It stops once limit candidates are found; blocks that fail to read are
// skipped.
func ExtractCandidates(doc page.Scope, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	els, err := doc.Elements(blockSelector)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, el := range els {
		if len(out) >= limit {
			break
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !strings.Contains(text, "\n") {
			imgs, err := el.Elements("img")
			if err != nil || len(imgs) == 0 {
				continue
			}
		}
		out = append(out, Candidate{Element: el, Text: text})
	}
	return out
}

// Tracker keeps the best match for one target across scan passes.
type Tracker struct {
	target string
	best   *Match
}

func NewTracker(target string) *Tracker {
	return &Tracker{target: strings.ToLower(strings.TrimSpace(target))}
}

// Scan extracts and scores one pass and returns that pass's best match.
// Within a pass the first of equal scores wins; across passes an equal
// score replaces the older match so the element reference stays fresh.
func (t *Tracker) Scan(doc page.Scope, limit int) *Match {
	var pass *Match
	for _, c := range ExtractCandidates(doc, limit) {
		score := fuzzy.Similarity(t.target, c.Text)
		if pass == nil || score > pass.Score {
			pass = &Match{Candidate: c, Score: score}
		}
	}
	if pass != nil && (t.best == nil || pass.Score >= t.best.Score) {
		t.best = pass
	}
	return pass
}

// Best is the highest-scoring match seen so far, or nil.
func (t *Tracker) Best() *Match { return t.best }

// Locate runs up to maxPasses scan passes for target and returns as soon
// as the best match reaches minScore. Between passes it scrolls to reveal
// lazily loaded content and sleeps scrollDelay. When no pass reaches
// minScore the best match seen is returned, which may be nil.
func Locate(ctx context.Context, doc page.Document, target string, minScore float64, maxPasses int, scrollDelay time.Duration, limit int) (*Match, error) {
	t := NewTracker(target)
	for pass := 0; pass < maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return t.Best(), err
		}
		t.Scan(doc, limit)
		if best := t.Best(); best != nil && best.Score >= minScore {
			return best, nil
		}
		if pass == maxPasses-1 {
			break
		}
		if err := doc.ScrollBy(scrollStep); page.IsFatal(err) {
			return t.Best(), err
		}
		if err := page.Sleep(ctx, scrollDelay); err != nil {
			return t.Best(), err
		}
	}
	return t.Best(), nil
}
