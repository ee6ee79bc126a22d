package extract

import (
	"net/url"
	"strings"
)

// skipTags never contribute text or links, nor does anything nested in them.
var skipTags = map[string]struct{}{
	"script": {},
	"style":  {},
}

// Extract returns the readable text and resolved links of content.
//
// Plain text is returned verbatim with no links. Everything else is treated
// as markup: trimmed text chunks outside script and style are joined with
// newlines, and every non-empty anchor href is resolved against baseURL and
// kept in document order, duplicates included.
func Extract(content, contentType, baseURL string) (string, []string) {
	if IsPlainText(contentType) {
		return content, []string{}
	}
	c := newCollector(baseURL)
	// strings.Reader only ever reports io.EOF, so Tokenize cannot fail here.
	_ = Tokenize(strings.NewReader(content), c)
	return c.Text(), c.Links()
}

// IsPlainText reports whether contentType names text/plain, ignoring case and
// parameters.
func IsPlainText(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/plain")
}

// collector accumulates text and links from tokenizer events.
type collector struct {
	base      *url.URL
	chunks    []string
	links     []string
	skipDepth int
}

func newCollector(baseURL string) *collector {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	return &collector{base: base, links: []string{}}
}

func (c *collector) OnOpenTag(name string, attrs []Attribute) {
	if _, skip := skipTags[name]; skip {
		c.skipDepth++
		return
	}
	if c.skipDepth > 0 || name != "a" {
		return
	}
	for _, attr := range attrs {
		if attr.Name == "href" && attr.Value != "" {
			c.links = append(c.links, c.resolve(attr.Value))
		}
	}
}

func (c *collector) OnCloseTag(name string) {
	if _, skip := skipTags[name]; skip && c.skipDepth > 0 {
		c.skipDepth--
	}
}

func (c *collector) OnText(chunk string) {
	if c.skipDepth > 0 {
		return
	}
	if text := strings.TrimSpace(chunk); text != "" {
		c.chunks = append(c.chunks, text)
	}
}

func (c *collector) Text() string {
	return strings.Join(c.chunks, "\n")
}

func (c *collector) Links() []string {
	return c.links
}

// resolve joins href onto the base URL. Unparseable input is kept as written.
func (c *collector) resolve(href string) string {
	if c.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}
