// Package matcher resolves free-text statement labels onto canonical keys.
package matcher

import (
	"github.com/agnivade/levenshtein"

	"github.com/yurifrl/mizan/pkg/arabic"
	"github.com/yurifrl/mizan/pkg/models"
)

// MaxDistance is the largest edit distance still accepted as a match.
const MaxDistance = 2

type variant struct {
	key  models.Key
	norm string
}

// Matcher holds the normalised variants of one field table.
type Matcher struct {
	variants []variant
}

// New prepares a matcher for table. Variants keep table order so ties go to
// the key enumerated first.
func New(table models.Table) *Matcher {
	m := &Matcher{}
	for _, f := range table.Fields {
		for _, v := range f.Variants {
			m.variants = append(m.variants, variant{key: f.Key, norm: arabic.Normalize(v)})
		}
	}
	return m
}

// Best returns the closest key and its distance regardless of threshold.
// ok is false only when the table has no variants.
func (m *Matcher) Best(label string) (key models.Key, distance int, ok bool) {
	norm := arabic.Normalize(label)
	distance = -1
	for _, v := range m.variants {
		d := levenshtein.ComputeDistance(norm, v.norm)
		if distance < 0 || d < distance {
			key, distance = v.key, d
		}
	}
	return key, distance, distance >= 0
}

// Match returns the closest key when it is within MaxDistance edits.
func (m *Matcher) Match(label string) (models.Key, bool) {
	key, d, ok := m.Best(label)
	if !ok || d > MaxDistance {
		return "", false
	}
	return key, true
}

// Match is a one-shot form of New(table).Match(label).
func Match(label string, table models.Table) (models.Key, bool) {
	return New(table).Match(label)
}
