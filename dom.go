package main

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// newElement builds a detached element node.
func newElement(a atom.Atom, name string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: name, Attr: attrs}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		if attr.Key != key {
			kept = append(kept, attr)
		}
	}
	n.Attr = kept
}

// nodeHasClass reports whether the element carries the exact class token.
func nodeHasClass(n *html.Node, class string) bool {
	raw, ok := getAttr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(raw) {
		if c == class {
			return true
		}
	}
	return false
}

func addNodeClass(n *html.Node, class string) {
	if nodeHasClass(n, class) {
		return
	}
	raw, _ := getAttr(n, "class")
	if raw == "" {
		setAttr(n, "class", class)
		return
	}
	setAttr(n, "class", raw+" "+class)
}

// findDescendant returns the first descendant matching, in depth-first
// order, or nil. The node itself is not considered.
func findDescendant(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := findDescendant(c, match); found != nil {
			return found
		}
	}
	return nil
}

// firstChildElement returns the first direct child element with the given
// tag name, or nil.
func firstChildElement(n *html.Node, name string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

// childDivWithClass returns the first direct child div carrying the class
// token, or nil.
func childDivWithClass(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "div" && nodeHasClass(c, class) {
			return c
		}
	}
	return nil
}

// detachChildren removes all children from n and returns them in order.
func detachChildren(n *html.Node) []*html.Node {
	var children []*html.Node
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		children = append(children, c)
	}
	return children
}

// moveChildren reparents all children of src to the end of dst.
func moveChildren(dst, src *html.Node) {
	for _, c := range detachChildren(src) {
		dst.AppendChild(c)
	}
}

func countDescendants(n *html.Node, name string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == name {
				count++
			}
			walk(c)
		}
	}
	walk(n)
	return count
}
