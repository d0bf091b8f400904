package words

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoadFromBytes(t *testing.T) {
	data := []byte(`
words:
  - apple
  - "  banana  "
  - ""
  - 月亮
`)
	got, err := LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana", "月亮"}, got)
}

func TestLoadFromBytes_Empty(t *testing.T) {
	_, err := LoadFromBytes([]byte(`words: []`))
	assert.Error(t, err)

	_, err = LoadFromBytes([]byte(`words: ["", "  "]`))
	assert.Error(t, err)
}

func TestLoadFromBytes_BadYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("words: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words: [cat, dog]\n"), 0644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, got)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSource_Defaults(t *testing.T) {
	s := NewSource(nil, 1)
	assert.Equal(t, len(defaultWords), s.PoolSize())
	assert.NotEmpty(t, s.NextWord())
}

func TestSource_Deterministic(t *testing.T) {
	a := NewSource([]string{"a", "b", "c"}, 42)
	b := NewSource([]string{"a", "b", "c"}, 42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.NextWord(), b.NextWord())
	}
}

func TestSource_NoRepeatUntilExhausted(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	s := NewSource(pool, 7)

	seen := make(map[string]bool)
	for i := 0; i < len(pool); i++ {
		w := s.NextWord()
		assert.False(t, seen[w], "word %q repeated before pool exhausted", w)
		seen[w] = true
	}
	assert.Len(t, seen, len(pool))

	// Pool exhausted: the used set resets and drawing continues.
	assert.NotEmpty(t, s.NextWord())
}

// Property: every word drawn comes from the pool, and any window of
// pool-size draws after a reset boundary contains no duplicates.
func TestPropertySource_DrawsFromPool(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "pool_size")
		pool := make([]string, n)
		inPool := make(map[string]bool, n)
		for i := range pool {
			pool[i] = string(rune('a' + i))
			inPool[pool[i]] = true
		}
		seed := rapid.Int64().Draw(t, "seed")
		s := NewSource(pool, seed)

		draws := rapid.IntRange(1, 3*n).Draw(t, "draws")
		for i := 0; i < draws; i++ {
			assert.True(t, inPool[s.NextWord()])
		}
	})
}
