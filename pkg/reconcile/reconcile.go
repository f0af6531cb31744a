// Package reconcile compares an incoming statement snapshot with the one
// already stored, field by field, so a batch import can be previewed before
// anything is saved.
package reconcile

import (
	"strings"

	"github.com/yurifrl/mizan/pkg/arabic"
	"github.com/yurifrl/mizan/pkg/compare"
	"github.com/yurifrl/mizan/pkg/models"
)

// Status is what saving the incoming snapshot would do to one field.
type Status int

const (
	Unchanged Status = iota
	Added
	Changed
	Removed
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	}
	return "unchanged"
}

// Entry is one canonical or custom field present on either side.
type Entry struct {
	Key      models.Key // empty for custom fields
	Label    string
	Stored   models.Amount
	Incoming models.Amount
	Status   Status
}

func (e Entry) Custom() bool {
	return e.Key == ""
}

type Report struct {
	Kind models.Kind
	// New is set when nothing was stored for the statement yet.
	New   bool
	Items []Entry
}

// Build diffs incoming against stored; a nil stored means no snapshot exists.
// Canonical fields come first in table order, then custom fields matched by
// normalised label. Fields empty on both sides are left out.
func Build(table models.Table, stored *models.Snapshot, incoming models.Snapshot) *Report {
	r := &Report{Kind: table.Kind, New: stored == nil}

	var old models.Snapshot
	if stored != nil {
		old = *stored
	}

	for _, f := range table.Fields {
		if e, ok := entry(old.Static[f.Key], incoming.Static[f.Key]); ok {
			e.Key = f.Key
			e.Label = f.Label
			r.Items = append(r.Items, e)
		}
	}

	in := make(map[string]models.Amount, len(incoming.Custom))
	for _, c := range incoming.Custom {
		in[labelKey(c.Label)] = c.Value
	}
	seen := make(map[string]bool, len(old.Custom))
	for _, c := range old.Custom {
		norm := labelKey(c.Label)
		seen[norm] = true
		if e, ok := entry(c.Value, in[norm]); ok {
			e.Label = c.Label
			r.Items = append(r.Items, e)
		}
	}
	for _, c := range incoming.Custom {
		norm := labelKey(c.Label)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		if e, ok := entry(models.Amount{}, c.Value); ok {
			e.Label = c.Label
			r.Items = append(r.Items, e)
		}
	}
	return r
}

// labelKey matches custom labels by their Arabic letters, falling back to the
// trimmed label for labels without any.
func labelKey(label string) string {
	if k := arabic.Normalize(label); k != "" {
		return k
	}
	return strings.TrimSpace(label)
}

func entry(stored, incoming models.Amount) (Entry, bool) {
	e := Entry{Stored: stored, Incoming: incoming}
	switch {
	case !stored.Valid && !incoming.Valid:
		return e, false
	case !stored.Valid:
		e.Status = Added
	case !incoming.Valid:
		e.Status = Removed
	case compare.Values(stored.Value, incoming.Value) != compare.Equal:
		e.Status = Changed
	default:
		e.Status = Unchanged
	}
	return e, true
}

// Count returns how many entries have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, e := range r.Items {
		if e.Status == s {
			n++
		}
	}
	return n
}

// HasChanges reports whether saving would alter the stored statement.
func (r *Report) HasChanges() bool {
	return len(r.Items) != r.Count(Unchanged)
}
