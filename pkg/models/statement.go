package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownKind is returned when a wire name does not name a statement kind.
var ErrUnknownKind = errors.New("unknown statement kind")

// Kind identifies one of the three annual financial statements.
type Kind int

const (
	BalanceSheet Kind = iota
	IncomeStatement
	CashFlow
)

// Kinds lists every statement kind in presentation order.
var Kinds = []Kind{BalanceSheet, IncomeStatement, CashFlow}

var kindNames = map[Kind]string{
	BalanceSheet:    "balance-sheet",
	IncomeStatement: "income-statement",
	CashFlow:        "cash-flow",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name ("balance-sheet", "income-statement", "cash-flow")
// onto a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Key is a canonical field identifier such as "totalAssets" or "netSell".
type Key string

const (
	TotalAssets              Key = "totalAssets"
	TotalDebits              Key = "totalDebits"
	CurrentAssets            Key = "currentAssets"
	CurrentDebits            Key = "currentDebits"
	Inventory                Key = "inventory"
	TotalContributersRights  Key = "totalContributersRights"
	TotalFixedAssets         Key = "totalFixedAssets"
	ClientsAndOtherDebits    Key = "clientsAndOtherDebits"
	CreditorsAndOtherCredits Key = "creditorsAndOtherCredits"
	NetCashFlowAndSimilar    Key = "netCashFlowAndSimilar"

	OperatingProfit  Key = "operatingProfit"
	Benefit          Key = "benefit"
	Rent             Key = "rent"
	FixedCommitments Key = "fixedCommitments"
	NetSell          Key = "netSell"
	FutureNetSales   Key = "futureNetSales"
	CostSales        Key = "costSales"
	TotalProfit      Key = "totalProfit"
	NetYearProfit    Key = "netYearProfit"

	NetOperatingCashFlow Key = "netOperatingCashFlow"
)

// Amount is an optional statement value. The zero Amount is empty.
type Amount struct {
	Value float64
	Valid bool
}

// NewAmount returns a valid Amount holding v.
func NewAmount(v float64) Amount {
	return Amount{Value: v, Valid: true}
}

// ParseAmount reads a user-entered number, ignoring thousands separators.
// Blank input yields an empty Amount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Amount{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}, fmt.Errorf("invalid amount %q: not finite", s)
	}
	return NewAmount(v), nil
}

func (a Amount) String() string {
	if !a.Valid {
		return ""
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

// MarshalJSON writes a number for valid amounts and "" for empty ones, the
// shape the statement forms have always stored.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid || math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
		return []byte(`""`), nil
	}
	return []byte(strconv.FormatFloat(a.Value, 'f', -1, 64)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*a = NewAmount(v)
	return nil
}

// Fields holds the static (canonical) values of one statement.
type Fields map[Key]Amount

// Present reports the value of key when it can take part in a calculation:
// set, finite and non-zero. A zero value counts as absent.
func (f Fields) Present(key Key) (float64, bool) {
	if f == nil {
		return 0, false
	}
	a, ok := f[key]
	if !ok || !a.Valid {
		return 0, false
	}
	if a.Value == 0 || math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
		return 0, false
	}
	return a.Value, true
}

// CustomField is a statement row that did not match any canonical key.
type CustomField struct {
	Label string `json:"label"`
	Value Amount `json:"value"`
}

// Snapshot is the full static and custom field set of one statement for one
// company and year.
type Snapshot struct {
	Static Fields        `json:"static"`
	Custom []CustomField `json:"custom"`
}

// NewSnapshot returns a snapshot with every key of table present and empty.
func NewSnapshot(table Table) Snapshot {
	s := Snapshot{Static: make(Fields, len(table.Fields)), Custom: []CustomField{}}
	for _, f := range table.Fields {
		s.Static[f.Key] = Amount{}
	}
	return s
}

// Mode selects which side of a comparison a statement belongs to.
type Mode string

const (
	ModeBase       Mode = "base"
	ModeComparison Mode = "comp"
)

// Comparison pairs a base year and a comparison year for one company.
type Comparison struct {
	Company        string `json:"company" yaml:"company"`
	BaseYear       int    `json:"baseYear" yaml:"base_year"`
	ComparisonYear int    `json:"comparisonYear" yaml:"comparison_year"`
}

// YearFor returns the year a statement uploaded in mode belongs to. Any mode
// other than "comp" is treated as the base year.
func (c Comparison) YearFor(mode Mode) int {
	if mode == ModeComparison {
		return c.ComparisonYear
	}
	return c.BaseYear
}

func (c Comparison) Validate() error {
	if strings.TrimSpace(c.Company) == "" {
		return errors.New("company is required")
	}
	if c.BaseYear <= 0 || c.ComparisonYear <= 0 {
		return errors.New("baseYear and comparisonYear are required")
	}
	return nil
}
