// Package rodpage adapts a go-rod page to the page capabilities.
package rodpage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"dropwatch/internal/page"
)

// DefaultClickTimeout bounds how long a click waits for the element to become interactable.
const DefaultClickTimeout = 5 * time.Second

// Tab is a browser tab the engine drives.
type Tab struct {
	Page         *rod.Page
	ClickTimeout time.Duration
	LoadTimeout  time.Duration
}

func NewTab(p *rod.Page) *Tab {
	return &Tab{Page: p, ClickTimeout: DefaultClickTimeout, LoadTimeout: 30 * time.Second}
}

func (t *Tab) Document() page.Document {
	return &Document{p: t.Page, clickTimeout: t.ClickTimeout}
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.LoadTimeout)
	defer cancel()

	p := t.Page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, mapError(err))
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, mapError(err))
	}
	return nil
}

func (t *Tab) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, t.LoadTimeout)
	defer cancel()

	p := t.Page.Context(navCtx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", mapError(err))
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load after reload: %w", mapError(err))
	}
	return nil
}

// Document is a page or the content page of an iframe.
type Document struct {
	p            *rod.Page
	clickTimeout time.Duration
}

func (d *Document) Elements(selector string) ([]page.Element, error) {
	els, err := d.p.Elements(selector)
	if err != nil {
		return nil, mapError(err)
	}
	return d.wrap(els), nil
}

func (d *Document) wrap(els rod.Elements) []page.Element {
	out := make([]page.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el, doc: d})
	}
	return out
}

func (d *Document) URL() (string, error) {
	info, err := d.p.Info()
	if err != nil {
		return "", mapError(err)
	}
	return info.URL, nil
}

func (d *Document) Title() (string, error) {
	info, err := d.p.Info()
	if err != nil {
		return "", mapError(err)
	}
	return info.Title, nil
}

func (d *Document) Text() (string, error) {
	res, err := d.p.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", mapError(err)
	}
	return res.Value.Str(), nil
}

func (d *Document) HTML() (string, error) {
	s, err := d.p.HTML()
	return s, mapError(err)
}

func (d *Document) ScrollBy(viewports float64) error {
	_, err := d.p.Eval(`(f) => window.scrollBy(0, Math.floor(window.innerHeight * f))`, viewports)
	return mapError(err)
}

type Element struct {
	el  *rod.Element
	doc *Document
}

func (e *Element) Elements(selector string) ([]page.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, mapError(err)
	}
	return e.doc.wrap(els), nil
}

func (e *Element) Tag() string {
	res, err := e.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) Text() (string, error) {
	s, err := e.el.Text()
	return s, mapError(err)
}

func (e *Element) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", mapError(err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *Element) HTML() (string, error) {
	s, err := e.el.HTML()
	return s, mapError(err)
}

func (e *Element) Visible() (bool, error) {
	ok, err := e.el.Visible()
	return ok, mapError(err)
}

func (e *Element) Checked() (bool, error) {
	v, err := e.el.Property("checked")
	if err != nil {
		return false, mapError(err)
	}
	return v.Bool(), nil
}

func (e *Element) HasAncestor(selector string) (bool, error) {
	res, err := e.el.Eval(`(sel) => !!(this.parentElement && this.parentElement.closest(sel))`, selector)
	if err != nil {
		return false, mapError(err)
	}
	return res.Value.Bool(), nil
}

func (e *Element) Parent() (page.Element, error) {
	p, err := e.el.Parent()
	if err != nil {
		return nil, mapError(err)
	}
	return &Element{el: p, doc: e.doc}, nil
}

func (e *Element) Click() error {
	return mapError(e.el.Timeout(e.doc.clickTimeout).Click(proto.InputMouseButtonLeft, 1))
}

func (e *Element) ForceClick() error {
	_, err := e.el.Eval(`() => this.click()`)
	return mapError(err)
}

func (e *Element) ScrollIntoView() error {
	return mapError(e.el.ScrollIntoView())
}

func (e *Element) Highlight(color string, d time.Duration) error {
	_, err := e.el.Eval(`(color, ms) => {
		const prev = this.style.outline;
		this.style.outline = "3px solid " + color;
		setTimeout(() => { this.style.outline = prev; }, ms);
	}`, color, d.Milliseconds())
	return mapError(err)
}

func (e *Element) Fill(value string) error {
	if err := e.el.SelectAllText(); err != nil {
		return mapError(err)
	}
	return mapError(e.el.Input(value))
}

func (e *Element) SelectOption(value string) error {
	err := e.el.Select([]string{value}, true, rod.SelectorTypeText)
	if err == nil {
		return nil
	}
	css := fmt.Sprintf(`option[value=%q]`, value)
	if err2 := e.el.Select([]string{css}, true, rod.SelectorTypeCSSSector); err2 != nil {
		return mapError(err)
	}
	return nil
}

func (e *Element) Frame() (page.Document, error) {
	if e.Tag() != "iframe" {
		return nil, page.ErrNoFrame
	}
	fp, err := e.el.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", page.ErrNoFrame, mapError(err))
	}
	return &Document{p: fp, clickTimeout: e.doc.clickTimeout}, nil
}

// mapError folds rod and CDP failures into the page sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var covered *rod.CoveredError
	var notInteractable *rod.NotInteractableError
	var notFound *rod.ObjectNotFoundError
	switch {
	case errors.As(err, &covered), errors.As(err, &notInteractable):
		return fmt.Errorf("%w: element covered", page.ErrIntercepted)
	case errors.As(err, &notFound):
		return page.ErrStale
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "could not find node"),
		strings.Contains(msg, "does not belong to the document"),
		strings.Contains(msg, "cannot find context with specified id"),
		strings.Contains(msg, "object reference chain is too long"),
		strings.Contains(msg, "no node with given id"):
		return fmt.Errorf("%w: %v", page.ErrStale, err)
	case strings.Contains(msg, "websocket: close"),
		strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "session closed"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"):
		return fmt.Errorf("%w: %v", page.ErrDriverLost, err)
	}
	return err
}
