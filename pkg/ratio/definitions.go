package ratio

import "github.com/yurifrl/mizan/pkg/models"

// Category groups ratios for presentation.
type Category string

const (
	Debt          Category = "debt"
	Liquidity     Category = "liquidity"
	Activity      Category = "activity"
	Profitability Category = "profitability"
)

// Title is the Arabic section heading of the category.
func (c Category) Title() string {
	switch c {
	case Debt:
		return "نسب المديونية"
	case Liquidity:
		return "نسب السيولة"
	case Activity:
		return "نسب النشاط"
	case Profitability:
		return "نسب الربحية"
	}
	return string(c)
}

// Unit says how a ratio value is read.
type Unit string

const (
	Percent Unit = "percent"
	Times   Unit = "times"
	Days    Unit = "days"
)

type formula func(in inputs, set Set) (float64, bool)

// Definition is the static metadata of one ratio.
type Definition struct {
	ID       ID
	Category Category
	Label    string
	Unit     Unit
	// Requires lists the ratios this one is derived from.
	Requires []ID

	compute formula
}

// definitions are evaluated in order; derived ratios come after the ratios
// they read. There is no ratio 4.
var definitions = []Definition{
	{ID: 1, Category: Debt, Unit: Percent, Label: "نسبة اجمالي الديون إلى اجمالي الأصول",
		compute: ratioOf(bs(models.TotalDebits), bs(models.TotalAssets))},
	{ID: 2, Category: Debt, Unit: Percent, Label: "نسبة اجمالي الديون إلي اجمالي حقوق الملكية",
		compute: ratioOf(bs(models.TotalDebits), bs(models.TotalContributersRights))},
	{ID: 3, Category: Debt, Unit: Percent, Label: "نسبة اجمالي حقوق الملكية إلي اجمالي الأصول",
		compute: ratioOf(bs(models.TotalContributersRights), bs(models.TotalAssets))},
	{ID: 5, Category: Debt, Unit: Times, Label: "معدل تغطيه الفوائد",
		compute: ratioOf(is(models.OperatingProfit), is(models.Benefit))},
	{ID: 6, Category: Debt, Unit: Times, Label: "معدل تغطيه الرسوم الثابتة",
		compute: ratioOf(is(models.OperatingProfit), sum(is(models.Benefit), is(models.FixedCommitments)))},
	{ID: 7, Category: Debt, Unit: Percent, Label: "نسبة هيكل راس المال",
		compute: ratioOf(bs(models.TotalDebits), sum(bs(models.TotalContributersRights), bs(models.TotalDebits)))},

	{ID: 8, Category: Liquidity, Unit: Times, Label: "نسبة السيولة الحالية",
		compute: ratioOf(bs(models.CurrentAssets), bs(models.CurrentDebits))},
	{ID: 9, Category: Liquidity, Unit: Times, Label: "نسبة السيولة السريعة",
		compute: ratioOf(diff(bs(models.CurrentAssets), bs(models.Inventory)), bs(models.CurrentDebits))},
	{ID: 10, Category: Liquidity, Unit: Times, Label: "نسبة التداول",
		compute: ratioOf(is(models.NetSell), bs(models.CurrentAssets))},
	{ID: 11, Category: Liquidity, Unit: Times, Label: "نسبة السيولة التشغيلية",
		compute: ratioOf(cf(models.NetOperatingCashFlow), bs(models.TotalDebits))},
	{ID: 12, Category: Liquidity, Unit: Times, Label: "نسبة السيولة المالية",
		compute: ratioOf(bs(models.TotalDebits), bs(models.TotalContributersRights))},
	{ID: 13, Category: Liquidity, Unit: Times, Label: "السيولة من حقوق المساهمين",
		compute: ratioOf(bs(models.TotalContributersRights), bs(models.TotalDebits))},
	{ID: 14, Category: Liquidity, Unit: Times, Label: "السيولة من الأصول الثابتة",
		compute: ratioOf(bs(models.TotalFixedAssets), bs(models.TotalDebits))},
	{ID: 15, Category: Liquidity, Unit: Times, Label: "السيولة من الأصول المتداولة",
		compute: ratioOf(bs(models.CurrentAssets), bs(models.TotalDebits))},
	{ID: 16, Category: Liquidity, Unit: Percent, Label: "نسبة رأس المال العامل",
		compute: ratioOf(diff(bs(models.CurrentAssets), bs(models.CurrentDebits)), bs(models.TotalAssets))},

	{ID: 17, Category: Activity, Unit: Times, Label: "معدل دوران الاصول",
		compute: ratioOf(is(models.NetSell), bs(models.TotalAssets))},
	{ID: 18, Category: Activity, Unit: Times, Label: "معدل دوران الاصول الثابتة",
		compute: ratioOf(is(models.NetSell), bs(models.TotalFixedAssets))},
	{ID: 19, Category: Activity, Unit: Times, Label: "معدل دوران الاصول المتداولة",
		compute: ratioOf(is(models.NetSell), bs(models.CurrentAssets))},
	{ID: 20, Category: Activity, Unit: Times, Label: "معدل دوران النقدية",
		compute: ratioOf(is(models.NetSell), firstOf(bs(models.NetCashFlowAndSimilar), cf(models.NetCashFlowAndSimilar)))},
	{ID: 21, Category: Activity, Unit: Times, Label: "معدل دوران أرصدة العملاء",
		compute: ratioOf(firstOf(is(models.FutureNetSales), is(models.NetSell)), bs(models.ClientsAndOtherDebits))},
	{ID: 22, Category: Activity, Unit: Days, Label: "متوسط فتره التحصيل", Requires: []ID{21},
		compute: daysOf(21)},
	{ID: 23, Category: Activity, Unit: Times, Label: "معدل دوران المخزون",
		compute: ratioOf(is(models.CostSales), bs(models.Inventory))},
	{ID: 24, Category: Activity, Unit: Days, Label: "متوسط فتره التخزين", Requires: []ID{23},
		compute: daysOf(23)},
	{ID: 25, Category: Activity, Unit: Days, Label: "طول الدورة التشغيلية", Requires: []ID{24, 22},
		compute: combine(func(v []float64) float64 { return v[0] + v[1] }, 24, 22)},
	{ID: 26, Category: Activity, Unit: Times, Label: "معدل دوران الدائنين",
		compute: ratioOf(is(models.CostSales), bs(models.CreditorsAndOtherCredits))},
	{ID: 27, Category: Activity, Unit: Days, Label: "متوسط فتره السداد", Requires: []ID{26},
		compute: daysOf(26)},
	{ID: 28, Category: Activity, Unit: Days, Label: "طول الدورة التجارية", Requires: []ID{24, 22, 27},
		compute: combine(func(v []float64) float64 { return v[0] + v[1] - v[2] }, 24, 22, 27)},

	{ID: 29, Category: Profitability, Unit: Percent, Label: "نسبة هامش الربح الاجمالي",
		compute: ratioOf(is(models.TotalProfit), is(models.NetSell))},
	{ID: 30, Category: Profitability, Unit: Percent, Label: "نسبة هامش الربح التشغيلي",
		compute: ratioOf(is(models.OperatingProfit), is(models.NetSell))},
	{ID: 31, Category: Profitability, Unit: Percent, Label: "نسبة هامش صافي الربح",
		compute: ratioOf(is(models.NetYearProfit), is(models.NetSell))},
	{ID: 32, Category: Profitability, Unit: Percent, Label: "(ROA)العائد علي إجمالي الأصول",
		compute: ratioOf(is(models.NetYearProfit), bs(models.TotalAssets))},
	{ID: 33, Category: Profitability, Unit: Percent, Label: "(ROE)العائد علي حقوق الملكية",
		compute: ratioOf(is(models.NetYearProfit), bs(models.TotalContributersRights))},
	{ID: 34, Category: Profitability, Unit: Percent, Label: "(ROS)العائد علي المبيعات",
		compute: ratioOf(is(models.NetYearProfit), is(models.NetSell))},
}

var byID = func() map[ID]Definition {
	m := make(map[ID]Definition, len(definitions))
	for _, d := range definitions {
		m[d.ID] = d
	}
	return m
}()

// Definitions returns the ratio metadata in evaluation order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of id.
func Lookup(id ID) (Definition, bool) {
	d, ok := byID[id]
	return d, ok
}

// Categories returns the categories in report order.
func Categories() []Category {
	return []Category{Debt, Liquidity, Activity, Profitability}
}

// InCategory returns the definitions of c in ID order.
func InCategory(c Category) []Definition {
	var out []Definition
	for _, d := range definitions {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// sum adds fields that must all be present.
func sum(fields ...field) field {
	return func(in inputs) (float64, bool) {
		var total float64
		for _, f := range fields {
			v, ok := f(in)
			if !ok {
				return 0, false
			}
			total += v
		}
		return total, true
	}
}

// diff subtracts b from a; both must be present. The difference itself may
// be zero or negative.
func diff(a, b field) field {
	return func(in inputs) (float64, bool) {
		x, ok := a(in)
		if !ok {
			return 0, false
		}
		y, ok := b(in)
		if !ok {
			return 0, false
		}
		return x - y, true
	}
}

// combine folds earlier ratio values; every one of them must be available.
func combine(fn func([]float64) float64, ids ...ID) formula {
	return func(_ inputs, set Set) (float64, bool) {
		vals := make([]float64, len(ids))
		for i, id := range ids {
			r := set.Get(id)
			if r == nil {
				return 0, false
			}
			vals[i] = r.Value
		}
		return fn(vals), true
	}
}
