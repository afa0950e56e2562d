// Package htmlpage implements page.Document over a parsed HTML snapshot.
// It backs offline inspection of saved pages and the engine tests: clicks,
// fills and scrolls are recorded, anchors navigate through a route table,
// an open aria-modal dialog intercepts clicks outside of it, and iframes
// with a srcdoc expose a nested document.
package htmlpage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"dropwatch/internal/page"
)

// Document is a static page with recorded side effects.
type Document struct {
	url    string
	source string
	gq     *goquery.Document

	routes map[string]string
	frames map[*html.Node]*Document

	clicks  []string
	filled  map[string]string
	scrolls int

	// OnClick runs after every successful click.
	OnClick func(d *Document, el *Element)
	// OnScroll runs after every ScrollBy.
	OnScroll func(d *Document)
	// OnNavigate runs after a route was loaded by Navigate, Reload or an anchor click.
	OnNavigate func(d *Document)
}

// New parses source as the page found at url.
func New(url, source string) (*Document, error) {
	d := &Document{
		routes: make(map[string]string),
		filled: make(map[string]string),
	}
	if err := d.load(url, source); err != nil {
		return nil, err
	}
	return d, nil
}

// MustNew is New for fixtures.
func MustNew(url, source string) *Document {
	d, err := New(url, source)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) load(url, source string) error {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return fmt.Errorf("htmlpage: parse %s: %w", url, err)
	}
	d.url = url
	d.source = source
	d.gq = gq
	d.frames = make(map[*html.Node]*Document)
	return nil
}

// Route registers the markup served for url by Navigate and anchor clicks.
func (d *Document) Route(url, source string) {
	d.routes[url] = source
}

// Append parses markup and appends it to every element matching selector.
func (d *Document) Append(selector, markup string) {
	d.gq.Find(selector).AppendHtml(markup)
}

// Remove detaches the nodes matching selector; references to them go stale.
func (d *Document) Remove(selector string) {
	d.gq.Find(selector).Remove()
}

func (d *Document) Clicks() []string { return append([]string(nil), d.clicks...) }

// Filled maps a field key (name, id or placeholder) to the value entered.
func (d *Document) Filled() map[string]string {
	out := make(map[string]string, len(d.filled))
	for k, v := range d.filled {
		out[k] = v
	}
	return out
}

func (d *Document) Scrolls() int { return d.scrolls }

// Frames returns the nested documents opened so far.
func (d *Document) Frames() []*Document {
	var out []*Document
	for _, f := range d.frames {
		out = append(out, f)
	}
	return out
}

func (d *Document) Document() page.Document { return d }

func (d *Document) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, ok := d.routes[url]
	if !ok {
		return fmt.Errorf("htmlpage: navigate %s: no route", url)
	}
	if err := d.load(url, src); err != nil {
		return err
	}
	if d.OnNavigate != nil {
		d.OnNavigate(d)
	}
	return nil
}

func (d *Document) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := d.source
	if routed, ok := d.routes[d.url]; ok {
		src = routed
	}
	if err := d.load(d.url, src); err != nil {
		return err
	}
	if d.OnNavigate != nil {
		d.OnNavigate(d)
	}
	return nil
}

func (d *Document) Elements(selector string) ([]page.Element, error) {
	return d.wrap(d.gq.Find(selector)), nil
}

func (d *Document) URL() (string, error) { return d.url, nil }

func (d *Document) Title() (string, error) {
	return strings.TrimSpace(d.gq.Find("title").First().Text()), nil
}

func (d *Document) Text() (string, error) {
	body := d.gq.Find("body")
	if body.Length() == 0 {
		return innerText(d.gq.Selection.Nodes[0]), nil
	}
	return innerText(body.Nodes[0]), nil
}

func (d *Document) HTML() (string, error) {
	return d.gq.Html()
}

func (d *Document) ScrollBy(viewports float64) error {
	d.scrolls++
	if d.OnScroll != nil {
		d.OnScroll(d)
	}
	return nil
}

func (d *Document) wrap(sel *goquery.Selection) []page.Element {
	out := make([]page.Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, &Element{doc: d, node: n})
	}
	return out
}

// attached reports whether n still hangs off the current document root.
func (d *Document) attached(n *html.Node) bool {
	root := d.gq.Selection.Nodes[0]
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// blocker returns the visible modal dialog covering the page, if any.
func (d *Document) blocker() *html.Node {
	for _, n := range d.gq.Find(`[aria-modal="true"]`).Nodes {
		if visible(n) {
			return n
		}
	}
	return nil
}

func (d *Document) record(n *html.Node) {
	d.clicks = append(d.clicks, label(n))
}

// Element is a node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

func (e *Element) sel() *goquery.Selection {
	return e.doc.gq.FindNodes(e.node)
}

func (e *Element) stale() error {
	if !e.doc.attached(e.node) {
		return page.ErrStale
	}
	return nil
}

func (e *Element) Tag() string { return e.node.Data }

func (e *Element) Elements(selector string) ([]page.Element, error) {
	if err := e.stale(); err != nil {
		return nil, err
	}
	return e.doc.wrap(e.sel().Find(selector)), nil
}

func (e *Element) Text() (string, error) {
	if err := e.stale(); err != nil {
		return "", err
	}
	return innerText(e.node), nil
}

func (e *Element) Attr(name string) (string, error) {
	if err := e.stale(); err != nil {
		return "", err
	}
	v, _ := attr(e.node, name)
	return v, nil
}

func (e *Element) HTML() (string, error) {
	if err := e.stale(); err != nil {
		return "", err
	}
	return goquery.OuterHtml(e.sel())
}

func (e *Element) Visible() (bool, error) {
	if err := e.stale(); err != nil {
		return false, err
	}
	return visible(e.node), nil
}

func (e *Element) Checked() (bool, error) {
	if err := e.stale(); err != nil {
		return false, err
	}
	_, ok := attr(e.node, "checked")
	return ok, nil
}

func (e *Element) HasAncestor(selector string) (bool, error) {
	if err := e.stale(); err != nil {
		return false, err
	}
	return e.sel().ParentsFiltered(selector).Length() > 0, nil
}

func (e *Element) Parent() (page.Element, error) {
	if err := e.stale(); err != nil {
		return nil, err
	}
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, errors.New("htmlpage: element has no parent element")
	}
	return &Element{doc: e.doc, node: p}, nil
}

func (e *Element) Click() error {
	if err := e.stale(); err != nil {
		return err
	}
	if !visible(e.node) {
		return fmt.Errorf("htmlpage: element %s is not visible", label(e.node))
	}
	if b := e.doc.blocker(); b != nil && !contains(b, e.node) {
		return fmt.Errorf("%w: covered by %s", page.ErrIntercepted, label(b))
	}
	return e.activate()
}

func (e *Element) ForceClick() error {
	if err := e.stale(); err != nil {
		return err
	}
	return e.activate()
}

func (e *Element) activate() error {
	doc := e.doc
	doc.record(e.node)

	switch e.node.Data {
	case "input":
		typ, _ := attr(e.node, "type")
		toggle(e.node, strings.ToLower(typ))
	case "label":
		if id, ok := attr(e.node, "for"); ok && id != "" {
			if target := doc.gq.Find("#" + id); target.Length() > 0 {
				typ, _ := attr(target.Nodes[0], "type")
				toggle(target.Nodes[0], strings.ToLower(typ))
			}
		} else if inner := e.sel().Find("input").First(); inner.Length() > 0 {
			typ, _ := attr(inner.Nodes[0], "type")
			toggle(inner.Nodes[0], strings.ToLower(typ))
		}
	}

	if doc.OnClick != nil {
		doc.OnClick(doc, e)
	}

	// Follow the nearest enclosing anchor when a route is known for it.
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "a" {
			href, _ := attr(n, "href")
			if src, ok := doc.routes[href]; ok {
				if err := doc.load(href, src); err != nil {
					return err
				}
				if doc.OnNavigate != nil {
					doc.OnNavigate(doc)
				}
			}
			break
		}
	}
	return nil
}

func (e *Element) ScrollIntoView() error { return e.stale() }

func (e *Element) Highlight(color string, dur time.Duration) error { return e.stale() }

func (e *Element) Fill(value string) error {
	if err := e.stale(); err != nil {
		return err
	}
	if e.node.Data != "input" && e.node.Data != "textarea" {
		return fmt.Errorf("htmlpage: cannot type into <%s>", e.node.Data)
	}
	for _, a := range []string{"disabled", "readonly"} {
		if _, ok := attr(e.node, a); ok {
			return fmt.Errorf("htmlpage: field %s is %s", label(e.node), a)
		}
	}
	setAttr(e.node, "value", value)
	e.doc.filled[fieldKey(e.node)] = value
	return nil
}

func (e *Element) SelectOption(value string) error {
	if err := e.stale(); err != nil {
		return err
	}
	if e.node.Data != "select" {
		return fmt.Errorf("htmlpage: <%s> is not a select", e.node.Data)
	}
	want := strings.ToLower(strings.TrimSpace(value))
	options := e.sel().Find("option")

	var chosen *html.Node
	// exact text, then partial text, then value
	for _, match := range []func(text, val string) bool{
		func(text, val string) bool { return text == want },
		func(text, val string) bool { return want != "" && strings.Contains(text, want) },
		func(text, val string) bool { return val == want },
	} {
		for _, n := range options.Nodes {
			text := strings.ToLower(strings.TrimSpace(innerText(n)))
			val, _ := attr(n, "value")
			if match(text, strings.ToLower(val)) {
				chosen = n
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("htmlpage: no option %q in %s", value, label(e.node))
	}
	for _, n := range options.Nodes {
		removeAttr(n, "selected")
	}
	setAttr(chosen, "selected", "")
	val, ok := attr(chosen, "value")
	if !ok {
		val = strings.TrimSpace(innerText(chosen))
	}
	e.doc.filled[fieldKey(e.node)] = val
	return nil
}

func (e *Element) Frame() (page.Document, error) {
	if err := e.stale(); err != nil {
		return nil, err
	}
	if e.node.Data != "iframe" {
		return nil, page.ErrNoFrame
	}
	if f, ok := e.doc.frames[e.node]; ok {
		return f, nil
	}
	src, ok := attr(e.node, "srcdoc")
	if !ok {
		return nil, page.ErrNoFrame
	}
	url, _ := attr(e.node, "src")
	f, err := New(url, src)
	if err != nil {
		return nil, err
	}
	e.doc.frames[e.node] = f
	return f, nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func toggle(n *html.Node, typ string) {
	switch typ {
	case "checkbox":
		if _, ok := attr(n, "checked"); ok {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	case "radio":
		setAttr(n, "checked", "")
	}
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func fieldKey(n *html.Node) string {
	for _, a := range []string{"name", "id", "placeholder"} {
		if v, ok := attr(n, a); ok && v != "" {
			return v
		}
	}
	return n.Data
}

func label(n *html.Node) string {
	if t := strings.TrimSpace(innerText(n)); t != "" {
		if len(t) > 40 {
			t = t[:40]
		}
		return t
	}
	if id, ok := attr(n, "id"); ok && id != "" {
		return n.Data + "#" + id
	}
	if v, ok := attr(n, "aria-label"); ok && v != "" {
		return v
	}
	return n.Data
}
