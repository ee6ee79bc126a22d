package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the archived form of a fetched page.
type Payload struct {
	URL   string   `json:"url"`
	Text  string   `json:"text"`
	Links []string `json:"links"`
}

// Encode renders the payload as an indented JSON envelope. Non-ASCII and HTML
// characters are written as-is.
func Encode(p Payload) ([]byte, error) {
	if p.Links == nil {
		p.Links = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode archive payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode reads either encoding the archive has used. A JSON object with a
// text field is read as an envelope; anything else is legacy raw text with no
// links. The boolean reports whether an envelope was found.
func Decode(raw []byte) (Payload, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope != nil {
		if text, ok := envelope["text"]; ok {
			return Payload{
				URL:   jsonString(envelope["url"]),
				Text:  jsonString(text),
				Links: jsonStrings(envelope["links"]),
			}, true
		}
	}
	return Payload{
		Text:  strings.ToValidUTF8(string(raw), "\uFFFD"),
		Links: []string{},
	}, false
}

// jsonString returns a JSON string value, or the literal text of any other
// value. null and absent values become "".
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	literal := strings.TrimSpace(string(raw))
	if literal == "null" {
		return ""
	}
	return literal
}

func jsonStrings(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, jsonString(item))
	}
	return out
}
