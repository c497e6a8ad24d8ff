package scraper

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed page the extractors query.
type Document interface {
	// FindAll returns every element matching a CSS selector, in document order.
	FindAll(selector string) []Node
	// FindByID returns the element with the given id attribute.
	FindByID(id string) (Node, bool)
}

// Node is one element of a Document.
type Node interface {
	// Text is the depth-first concatenation of all descendant text.
	Text() string
	Attr(name string) (string, bool)
	// HTML is the outer markup of the element.
	HTML() string
	FindAll(selector string) []Node
}

// ParseDocument builds a Document from raw HTML.
func ParseDocument(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ErrParse{Err: err}
	}
	return &goqueryDocument{doc: doc}, nil
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d *goqueryDocument) FindAll(selector string) []Node {
	return collect(d.doc.Find(selector))
}

func (d *goqueryDocument) FindByID(id string) (Node, bool) {
	sel := d.doc.Find(fmt.Sprintf("[id=%q]", id))
	if sel.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: sel.First()}, true
}

type selectionNode struct {
	sel *goquery.Selection
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n selectionNode) HTML() string {
	html, err := goquery.OuterHtml(n.sel)
	if err != nil {
		return ""
	}
	return html
}

func (n selectionNode) FindAll(selector string) []Node {
	return collect(n.sel.Find(selector))
}

func collect(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode{sel: s})
	})
	return nodes
}

// firstText returns the text of the first element matching selector.
func firstText(doc Document, selector string) (string, error) {
	nodes := doc.FindAll(selector)
	if len(nodes) == 0 {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return nodes[0].Text(), nil
}
