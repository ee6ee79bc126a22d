package webfetch

import (
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const defaultCharset = "utf-8"

// decodeBody converts body from the declared charset to UTF-8. Unknown labels
// fall back to UTF-8 and invalid sequences become U+FFFD.
func decodeBody(body []byte, label string) string {
	if strings.TrimSpace(label) == "" {
		label = defaultCharset
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		enc, _ = charset.Lookup(defaultCharset)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		decoded = body
	}
	return strings.ToValidUTF8(string(decoded), "\uFFFD")
}
