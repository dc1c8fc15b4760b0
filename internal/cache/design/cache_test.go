package designcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"figmento/internal/design"
	"figmento/internal/provider"
)

func TestFingerprint(t *testing.T) {
	in := provider.Input{Prompt: "poster", Image: &provider.Image{MIMEType: "image/png", Data: []byte{1, 2}}}
	s := Settings{Model: "m", MaxTokens: 100}

	a := Fingerprint(in, provider.OpenAI, s)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint(in, provider.OpenAI, s))
	assert.NotEqual(t, a, Fingerprint(in, provider.Gemini, s))
	assert.NotEqual(t, a, Fingerprint(in, provider.OpenAI, Settings{Model: "other", MaxTokens: 100}))

	other := in
	other.Image = &provider.Image{MIMEType: "image/png", Data: []byte{1, 3}}
	assert.NotEqual(t, a, Fingerprint(other, provider.OpenAI, s))

	override := in
	override.MaxTokens = 100
	assert.Equal(t, a, Fingerprint(override, provider.OpenAI, Settings{Model: "m", MaxTokens: 5}))
}

func TestCache_GetPut(t *testing.T) {
	c := New(2, time.Minute)
	doc := design.Document{Width: 10, Height: 20, BackgroundColor: "#fff", Elements: []design.Element{}}

	_, ok := c.Get("a")
	assert.False(t, ok)
	c.Put("a", doc)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, doc, got)

	c.Put("b", doc)
	c.Put("c", doc)
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.True(t, ok)

	hits, misses, evicted := c.Stats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
	assert.EqualValues(t, 1, evicted)
}

func TestCache_Expires(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Put("a", design.Document{Width: 1})
	require.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
