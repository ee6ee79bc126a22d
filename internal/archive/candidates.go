// Package archive keeps the last good copy of every fetched page so that a
// failed live fetch can still be answered.
//
// Each URL maps to an ordered list of candidate locations. The first is a
// readable path nested under the host directory; the last is a flat file whose
// name comes from a digest of the URL string, so it exists even when the path
// cannot be turned into a usable file name.
package archive

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/webfetch-archive/internal/hash/sha256"
)

const (
	unknownHost      = "unknown_host"
	indexSegment     = "index"
	segmentSeparator = "__"
	querySuffix      = "__q_"
	fileExtension    = ".txt"

	urlDigestLength   = 16
	queryDigestLength = 8
)

// DeriveCandidates returns the archive locations for rawURL in lookup order.
// The result always has two entries and depends on nothing but rawURL.
func DeriveCandidates(rawURL string) []string {
	host, segments, rawQuery := splitURL(rawURL)

	name := indexSegment
	if len(segments) > 0 {
		name = strings.Join(segments, segmentSeparator)
	}
	if rawQuery != "" {
		name += querySuffix + sha256.Prefix(rawQuery, queryDigestLength)
	}

	return []string{
		host + "/" + name + fileExtension,
		host + "_" + sha256.Prefix(rawURL, urlDigestLength) + fileExtension,
	}
}

// splitURL breaks rawURL into a host directory name, escaped non-empty path
// segments and the raw query. Unparseable input degrades to unknown_host with
// the raw string split on slashes.
func splitURL(rawURL string) (string, []string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unknownHost, escapeSegments(strings.Split(rawURL, "/"), false), ""
	}
	host := u.Host
	if host == "" || host == "." || host == ".." {
		host = unknownHost
	}
	return host, escapeSegments(strings.Split(u.EscapedPath(), "/"), true), u.RawQuery
}

func escapeSegments(parts []string, decode bool) []string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if decode {
			if unescaped, err := url.PathUnescape(part); err == nil {
				part = unescaped
			}
		}
		segments = append(segments, quote(part))
	}
	return segments
}

// quote percent-encodes every byte outside the unreserved set, including '/'.
func quote(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
