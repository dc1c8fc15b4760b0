package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	designcache "figmento/internal/cache/design"
	"figmento/internal/design"
	"figmento/internal/provider"
	"figmento/internal/safeio"
)

func TestCollectJobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "landing.txt"), []byte("landing page"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.md"), []byte("business card"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ref.png"), []byte("\x89PNG\r\n\x1a\nrest"), 0o644))
	inputs, err := safeio.New(dir, 0)
	require.NoError(t, err)

	jobs, err := collectJobs(inputs, "poster", "landing.txt", "", "ref.png", []string{"card.md"})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"prompt", "landing", "card"}, []string{jobs[0].name, jobs[1].name, jobs[2].name})
	assert.Equal(t, "landing page", jobs[1].input.Prompt)
	assert.Equal(t, defaultSystem, jobs[0].input.System)
	require.NotNil(t, jobs[2].input.Image)
	assert.Equal(t, "image/png", jobs[2].input.Image.MIMEType)

	_, err = collectJobs(inputs, "  ", "", "", "", nil)
	assert.ErrorContains(t, err, "nothing to analyze")
}

func TestWriteResults_Batch(t *testing.T) {
	out := filepath.Join(t.TempDir(), "designs")
	jobs := []job{{name: "a"}, {name: "b"}}
	results := map[string]design.Document{
		"a": {Width: 100, Height: 100, BackgroundColor: "#FFFFFF", Elements: []design.Element{}},
		"b": {Width: 200, Height: 50, BackgroundColor: "#000000", Elements: []design.Element{}},
	}
	require.NoError(t, writeResults(results, jobs, out))

	b, err := os.ReadFile(filepath.Join(out, "b.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"backgroundColor": "#000000"`)
	assert.FileExists(t, filepath.Join(out, "a.json"))
}

func TestCollectJobs_UniqueNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0o755))
	for _, p := range []string{"prompt.txt", "a/x.txt", "b/x.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), []byte(p), 0o644))
	}
	inputs, err := safeio.New(dir, 0)
	require.NoError(t, err)

	jobs, err := collectJobs(inputs, "inline", "", "", "", []string{"prompt.txt", "a/x.txt", "b/x.txt"})
	require.NoError(t, err)
	var names []string
	for _, j := range jobs {
		names = append(names, j.name)
	}
	assert.Equal(t, []string{"prompt", "prompt-2", "x", "x-2"}, names)
	assert.Equal(t, "b/x.txt", jobs[3].input.Prompt)
}

func TestUniqueName_SkipsTakenSuffix(t *testing.T) {
	taken := map[string]int{}
	assert.Equal(t, "x-2", uniqueName(taken, "x-2"))
	assert.Equal(t, "x", uniqueName(taken, "x"))
	assert.Equal(t, "x-3", uniqueName(taken, "x"))
}

func TestCacheSettings_UsesEffectiveModel(t *testing.T) {
	reg := provider.DefaultRegistry(map[provider.ID]provider.Settings{})
	a, err := reg.Get("openai")
	require.NoError(t, err)

	s := cacheSettings(a)
	assert.Equal(t, a.Settings().Model, s.Model)
	assert.NotEmpty(t, s.Model)
	assert.Equal(t, provider.DefaultMaxTokens, s.MaxTokens)

	in := provider.Input{Prompt: "poster"}
	other := provider.NewOpenAI(provider.Settings{Model: "gpt-other"})
	assert.NotEqual(t,
		designcache.Fingerprint(in, provider.OpenAI, s),
		designcache.Fingerprint(in, provider.OpenAI, cacheSettings(other)))
}
