package jsonutil

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_TruncatedElement(t *testing.T) {
	in := `{"width":400,"height":300,"elements":[{"id":"a","width":50`
	out, ok := Repair(in)
	require.True(t, ok)
	assert.Equal(t, in+"}]}", out)

	res := Parse(out)
	require.Equal(t, ParseOK, res.Status)
	elems := res.Value["elements"].([]any)
	require.Len(t, elems, 1)
	assert.Equal(t, "a", elems[0].(map[string]any)["id"])
}

func TestRepair_Cases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"open string value", `{"name":"Hea`, `{"name":"Hea"}`},
		{"trailing comma", `{"a":1,`, `{"a":1}`},
		{"dangling key", `{"a":1,"b`, `{"a":1}`},
		{"key without value", `{"a":1,"b":`, `{"a":1}`},
		{"partial literal", `{"a":[true,fal`, `{"a":[true]}`},
		{"partial number", `{"a":1.`, `{}`},
		{"cut escape", `{"a":"x\`, `{"a":"x"}`},
		{"cut unicode escape", `{"a":"x\u00`, `{"a":"x"}`},
		{"nested arrays", `{"a":[[1,2],[3`, `{"a":[[1,2],[3]]}`},
		{"brace inside string", `{"a":"}{","b":[`, `{"a":"}{","b":[]}`},
		{"only opener", `{`, `{}`},
		{"whitespace", "{\n  \"a\": [\n    1,\n", "{\n  \"a\": [\n    1]}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, ok := Repair(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, out)
			assert.True(t, json.Valid([]byte(out)))
		})
	}
}

func TestRepair_BalancedIsNoop(t *testing.T) {
	for _, in := range []string{
		`{"a":1}`,
		`{"a":1,}`,
		`{"a":"[{"}`,
		`not json at all`,
		``,
		`[1,2]`,
	} {
		out, ok := Repair(in)
		assert.False(t, ok, in)
		assert.Empty(t, out, in)
	}
}

func TestRepair_EveryUnbalancedPrefixParses(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 60; n++ {
		doc := map[string]any{"width": rng.Intn(4000), "elements": randomValue(rng, 4)}
		raw, err := MarshalNoEscapeIndent(doc, "", strings.Repeat(" ", n%3))
		require.NoError(t, err)
		text := string(raw)
		for cut := 1; cut < len(text); cut++ {
			prefix := text[:cut]
			if balanced(prefix) {
				continue
			}
			out, ok := Repair(prefix)
			if !assert.True(t, ok, "prefix %q", prefix) {
				return
			}
			if !assert.True(t, json.Valid([]byte(out)), "repair of %q gave %q", prefix, out) {
				return
			}
		}
		_, ok := Repair(text)
		assert.False(t, ok)
	}
}

func randomValue(rng *rand.Rand, depth int) any {
	kind := rng.Intn(7)
	if depth == 0 && kind >= 5 {
		kind = rng.Intn(5)
	}
	switch kind {
	case 0:
		return rng.Intn(2000) - 1000
	case 1:
		return rng.Float64() * 100
	case 2:
		return randomString(rng)
	case 3:
		return rng.Intn(2) == 0
	case 4:
		return nil
	case 5:
		arr := make([]any, rng.Intn(4))
		for i := range arr {
			arr[i] = randomValue(rng, depth-1)
		}
		return arr
	default:
		obj := map[string]any{}
		for i := rng.Intn(4); i > 0; i-- {
			obj[randomString(rng)] = randomValue(rng, depth-1)
		}
		return obj
	}
}

func randomString(rng *rand.Rand) string {
	const alphabet = `ab{}[]",:\ é` + "\n\t"
	runes := []rune(alphabet)
	var b strings.Builder
	for i := rng.Intn(8); i > 0; i-- {
		b.WriteRune(runes[rng.Intn(len(runes))])
	}
	if rng.Intn(5) == 0 {
		b.WriteString(fmt.Sprintf(" %d", rng.Intn(10)))
	}
	return b.String()
}
