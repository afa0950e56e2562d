package htmlpage

import (
	"strings"

	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "section": true, "table": true, "tr": true,
	"ul": true, "dialog": true, "option": true, "label": true,
}

var silentTags = map[string]bool{
	"script": true, "style": true, "template": true, "noscript": true,
	"head": true, "iframe": true,
}

// innerText approximates the browser property: hidden subtrees are
// skipped, whitespace collapses and block boundaries become newlines.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if silentTags[n.Data] || hiddenSelf(n) {
				return
			}
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(n)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// hiddenSelf reports whether the element itself is not rendered.
func hiddenSelf(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if silentTags[n.Data] && n.Data != "iframe" {
		return true
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if n.Data == "input" {
		if typ, _ := attr(n, "type"); strings.EqualFold(typ, "hidden") {
			return true
		}
	}
	style, _ := attr(n, "style")
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// visible reports whether n and every ancestor are rendered.
func visible(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if hiddenSelf(p) {
			return false
		}
	}
	return true
}
