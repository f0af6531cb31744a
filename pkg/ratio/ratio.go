// Package ratio derives the fixed set of financial ratios from the static
// fields of a balance sheet, an income statement and a cash-flow statement.
//
// A ratio is available only when every input it names is present, meaning
// set, finite and non-zero. Zero is deliberately treated like a missing
// value: it keeps divisions finite and matches how statements have always
// been read. Ratios built from other ratios are available only when all of
// their prerequisites are.
package ratio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yurifrl/mizan/pkg/models"
)

// ID identifies a ratio; IDs are stable and appear on the wire as "ratioN".
type ID int

func (id ID) String() string {
	return "ratio" + strconv.Itoa(int(id))
}

// ParseID reads "ratioN" or a bare "N".
func ParseID(s string) (ID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "ratio"))
	if err != nil {
		return 0, fmt.Errorf("invalid ratio id %q", s)
	}
	if _, ok := byID[ID(n)]; !ok {
		return 0, fmt.Errorf("unknown ratio id %q", s)
	}
	return ID(n), nil
}

// Result is an available ratio value with its fixed label.
type Result struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Set maps every defined ratio to its result, nil when unavailable.
type Set map[ID]*Result

// Get returns the result for id, or nil.
func (s Set) Get(id ID) *Result {
	if s == nil {
		return nil
	}
	return s[id]
}

// Available counts the non-nil entries.
func (s Set) Available() int {
	n := 0
	for _, r := range s {
		if r != nil {
			n++
		}
	}
	return n
}

// MarshalJSON writes the set as an object keyed ratio1..ratio34 in numeric
// order, with null for unavailable ratios.
func (s Set) MarshalJSON() ([]byte, error) {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(id.String()))
		buf.WriteByte(':')
		v, err := json.Marshal(s[id])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]*Result
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Set, len(raw))
	for k, v := range raw {
		id, err := ParseID(k)
		if err != nil {
			return err
		}
		out[id] = v
	}
	*s = out
	return nil
}

// inputs bundles the three statements a formula reads from.
type inputs struct {
	balance  models.Fields
	income   models.Fields
	cashflow models.Fields
}

// Compute derives every ratio from the three statements. Nil maps stand for
// missing statements. Compute is pure: equal inputs give equal sets.
func Compute(balance, income, cashflow models.Fields) Set {
	in := inputs{balance: balance, income: income, cashflow: cashflow}
	set := make(Set, len(definitions))
	for _, d := range definitions {
		v, ok := d.compute(in, set)
		if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			set[d.ID] = &Result{Label: d.Label, Value: v}
		} else {
			set[d.ID] = nil
		}
	}
	return set
}

// div divides two present values; a zero denominator is unavailable.
func div(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// days turns a turnover rate into a whole number of days in a 360-day year.
func days(rate float64) (float64, bool) {
	v, ok := div(360, rate)
	if !ok {
		return 0, false
	}
	return math.Round(v), true
}

// ratioOf divides two fields of the same or different statements.
func ratioOf(num, den field) formula {
	return func(in inputs, _ Set) (float64, bool) {
		n, ok := num(in)
		if !ok {
			return 0, false
		}
		d, ok := den(in)
		if !ok {
			return 0, false
		}
		return div(n, d)
	}
}

// daysOf converts an earlier turnover ratio into a period.
func daysOf(rate ID) formula {
	return func(_ inputs, set Set) (float64, bool) {
		r := set.Get(rate)
		if r == nil {
			return 0, false
		}
		return days(r.Value)
	}
}

type field func(inputs) (float64, bool)

func bs(key models.Key) field {
	return func(in inputs) (float64, bool) { return in.balance.Present(key) }
}

func is(key models.Key) field {
	return func(in inputs) (float64, bool) { return in.income.Present(key) }
}

func cf(key models.Key) field {
	return func(in inputs) (float64, bool) { return in.cashflow.Present(key) }
}

// firstOf falls back through fields in order.
func firstOf(fields ...field) field {
	return func(in inputs) (float64, bool) {
		for _, f := range fields {
			if v, ok := f(in); ok {
				return v, true
			}
		}
		return 0, false
	}
}
