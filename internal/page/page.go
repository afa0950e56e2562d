// Package page defines the capabilities the engine needs from a live
// document: structural queries, text/attribute/markup reads, visibility,
// clicks with distinct failure modes, small page-side effects and nested
// frames. Implementations live in rodpage (a real browser) and htmlpage
// (a parsed HTML snapshot).
package page

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrStale means the element no longer exists in the document.
	ErrStale = errors.New("stale element reference")
	// ErrIntercepted means another element (usually an overlay) received the click.
	ErrIntercepted = errors.New("click intercepted")
	// ErrDriverLost means the automation session itself is gone.
	ErrDriverLost = errors.New("browser session lost")
	// ErrNoFrame means the element does not host a nested document.
	ErrNoFrame = errors.New("element has no frame")
)

// Scope is anything elements can be queried from: a whole document or a subtree.
type Scope interface {
	// Elements returns the elements matching a CSS selector, in document order.
	Elements(selector string) ([]Element, error)
}

// Element is one node of the document.
type Element interface {
	Scope

	Tag() string
	// Text is the rendered text (innerText-like, block boundaries become newlines).
	Text() (string, error)
	// Attr returns the attribute value or "" when absent.
	Attr(name string) (string, error)
	// HTML is the outer markup of the element.
	HTML() (string, error)
	Visible() (bool, error)
	Checked() (bool, error)
	// HasAncestor reports whether a strict ancestor matches the selector.
	HasAncestor(selector string) (bool, error)
	Parent() (Element, error)

	Click() error
	// ForceClick dispatches a click page-side, ignoring whatever covers the element.
	ForceClick() error
	ScrollIntoView() error
	Highlight(color string, d time.Duration) error
	Fill(value string) error
	// SelectOption picks a <select> option by visible text, falling back to its value.
	SelectOption(value string) error
	// Frame returns the document rendered inside an iframe element.
	Frame() (Document, error)
}

// Document is the live page.
type Document interface {
	Scope

	URL() (string, error)
	Title() (string, error)
	// Text is the rendered text of the whole body.
	Text() (string, error)
	HTML() (string, error)
	// ScrollBy scrolls the viewport by a fraction of its height.
	ScrollBy(viewports float64) error
}

// Navigator is a document that can be driven to new URLs.
type Navigator interface {
	Document() Document
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
}

// IsFatal reports whether err means the session cannot continue.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDriverLost) || errors.Is(err, context.Canceled)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Describe returns the lower-cased text, aria-label, title, value and href
// of an element joined by spaces. Read failures contribute nothing.
func Describe(el Element) string {
	var parts []string
	if s, err := el.Text(); err == nil && s != "" {
		parts = append(parts, s)
	}
	for _, name := range []string{"aria-label", "title", "value", "href", "alt"} {
		if s, err := el.Attr(name); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Markup returns the lower-cased outer HTML, or "" when it cannot be read.
func Markup(el Element) string {
	s, err := el.HTML()
	if err != nil {
		return ""
	}
	return strings.ToLower(s)
}

// IsVisible treats read errors as invisible.
func IsVisible(el Element) bool {
	ok, err := el.Visible()
	return err == nil && ok
}

// TextOf returns the trimmed text of an element, "" on error.
func TextOf(el Element) string {
	s, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// AttrOf returns an attribute value, "" on error.
func AttrOf(el Element, name string) string {
	s, err := el.Attr(name)
	if err != nil {
		return ""
	}
	return s
}
