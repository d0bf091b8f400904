// Package words provides the secret-word source for drawing rounds.
// Word lists are loaded from YAML files; a built-in list is used when no
// file is configured.
package words

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// defaultWords is the built-in word pool used when no list file is loaded.
var defaultWords = []string{
	"苹果", "香蕉", "汽车", "飞机", "房子",
	"太阳", "月亮", "星星", "猫", "狗",
}

// List is the YAML document shape for a word-list file.
type List struct {
	Words []string `yaml:"words"`
}

// Validate checks that the list satisfies basic invariants.
//
// Postcondition: Returns nil iff the list contains at least one non-blank word.
func (l *List) Validate() error {
	for _, w := range l.Words {
		if strings.TrimSpace(w) != "" {
			return nil
		}
	}
	return fmt.Errorf("word list: must contain at least one non-blank word")
}

// LoadFromBytes parses a word list from raw YAML bytes.
//
// Postcondition: Returns a non-empty slice of trimmed words, or an error.
func LoadFromBytes(data []byte) ([]string, error) {
	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing word list YAML: %w", err)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list.Words))
	for _, w := range list.Words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

// LoadFile loads a word list from the YAML file at path.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading word list %s: %w", path, err)
	}
	words, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("word list %s: %w", path, err)
	}
	return words, nil
}

// Source draws words from a pool without repeating until the pool is
// exhausted, then resets the used set and keeps drawing. Safe for
// concurrent use; a Source may be shared across rooms.
type Source struct {
	mu   sync.Mutex
	rng  *rand.Rand
	pool []string
	used map[string]bool
}

// NewSource creates a Source over pool seeded with seed. A nil or empty
// pool falls back to the built-in default list.
//
// Postcondition: Returns a Source whose draw sequence is deterministic
// for a given pool and seed.
func NewSource(pool []string, seed int64) *Source {
	if len(pool) == 0 {
		pool = defaultWords
	}
	return &Source{
		rng:  rand.New(rand.NewSource(seed)),
		pool: append([]string(nil), pool...),
		used: make(map[string]bool),
	}
}

// NextWord returns the next secret word.
//
// Postcondition: no word repeats until every word in the pool has been
// drawn once since the last reset.
func (s *Source) NextWord() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make([]string, 0, len(s.pool))
	for _, w := range s.pool {
		if !s.used[w] {
			available = append(available, w)
		}
	}
	if len(available) == 0 {
		s.used = make(map[string]bool)
		available = append(available, s.pool...)
	}

	word := available[s.rng.Intn(len(available))]
	s.used[word] = true
	return word
}

// PoolSize returns the number of words in the pool.
func (s *Source) PoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}
