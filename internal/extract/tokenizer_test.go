package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) OnOpenTag(name string, attrs []Attribute) {
	var b strings.Builder
	b.WriteString("open:" + name)
	for _, a := range attrs {
		b.WriteString(" " + a.Name + "=" + a.Value)
	}
	r.events = append(r.events, b.String())
}

func (r *recorder) OnCloseTag(name string) {
	r.events = append(r.events, "close:"+name)
}

func (r *recorder) OnText(chunk string) {
	r.events = append(r.events, "text:"+chunk)
}

func TestTokenizeEvents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	err := Tokenize(strings.NewReader(`<!DOCTYPE html><P Class="x">Hi<br/><!-- note --></p>`), rec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"open:p class=x",
		"text:Hi",
		"open:br",
		"close:br",
		"close:p",
	}, rec.events)
}

func TestTokenizeScriptBodyIsSingleText(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	require.NoError(t, Tokenize(strings.NewReader(`<script>if (a < b) { x("<p>") }</script>`), rec))
	assert.Equal(t, []string{
		"open:script",
		`text:if (a < b) { x("<p>") }`,
		"close:script",
	}, rec.events)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestTokenizeReaderError(t *testing.T) {
	t.Parallel()

	err := Tokenize(failingReader{}, &recorder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
