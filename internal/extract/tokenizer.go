// Package extract turns fetched documents into readable text and outbound links.
package extract

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// Attribute is a single tag attribute. Names are lowercased by the tokenizer.
type Attribute struct {
	Name  string
	Value string
}

// Handler receives markup events in document order.
type Handler interface {
	OnOpenTag(name string, attrs []Attribute)
	OnCloseTag(name string)
	OnText(chunk string)
}

// Tokenize streams r through the HTML tokenizer and dispatches every tag and
// text event to h. Self-closing tags produce an open event followed by a close
// event. Comments and doctypes are dropped.
func Tokenize(r io.Reader, h Handler) error {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return fmt.Errorf("tokenize html: %w", err)
			}
			return nil
		case html.StartTagToken:
			name, attrs := readTag(z)
			h.OnOpenTag(name, attrs)
		case html.SelfClosingTagToken:
			name, attrs := readTag(z)
			h.OnOpenTag(name, attrs)
			h.OnCloseTag(name)
		case html.EndTagToken:
			name, _ := z.TagName()
			h.OnCloseTag(string(name))
		case html.TextToken:
			h.OnText(string(z.Text()))
		case html.CommentToken, html.DoctypeToken:
		}
	}
}

func readTag(z *html.Tokenizer) (string, []Attribute) {
	name, hasAttr := z.TagName()
	var attrs []Attribute
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs = append(attrs, Attribute{Name: string(key), Value: string(val)})
	}
	return string(name), attrs
}
