// Package metrics counts the silent degradations of import and reporting:
// discarded rows, skipped sheets, unavailable ratios and store failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all mizan metrics. A nil *Registry is valid and records
// nothing, so pure code paths can take one without caring.
type Registry struct {
	RowsDiscarded     *prometheus.CounterVec
	CustomFields      *prometheus.CounterVec
	SheetsImported    *prometheus.CounterVec
	SheetsSkipped     *prometheus.CounterVec
	RatiosUnavailable *prometheus.CounterVec
	StoreFailures     *prometheus.CounterVec
	ReportsBuilt      prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewRegistry creates the metrics and registers them on a fresh prometheus
// registry.
func NewRegistry() *Registry {
	r := &Registry{
		RowsDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_import_rows_discarded_total",
				Help: "Spreadsheet rows dropped during import by reason",
			},
			[]string{"reason"},
		),
		CustomFields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_import_custom_fields_total",
				Help: "Rows that matched no canonical key and were kept as custom fields",
			},
			[]string{"kind"},
		),
		SheetsImported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_import_sheets_total",
				Help: "Sheets imported and saved by statement kind",
			},
			[]string{"kind"},
		),
		SheetsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_import_sheets_skipped_total",
				Help: "Workbook sheets not imported by reason",
			},
			[]string{"reason"},
		),
		RatiosUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_report_ratios_unavailable_total",
				Help: "Ratios left empty in generated reports by ratio",
			},
			[]string{"ratio"},
		),
		StoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizan_store_failures_total",
				Help: "Statement store operations that failed by operation",
			},
			[]string{"op"},
		),
		ReportsBuilt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mizan_reports_built_total",
				Help: "Comparison reports generated",
			},
		),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		r.RowsDiscarded,
		r.CustomFields,
		r.SheetsImported,
		r.SheetsSkipped,
		r.RatiosUnavailable,
		r.StoreFailures,
		r.ReportsBuilt,
	)
	r.gatherer = reg
	return r
}

func (r *Registry) RowsDropped(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RowsDiscarded.WithLabelValues(reason).Add(float64(n))
}

func (r *Registry) CustomFieldsKept(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.CustomFields.WithLabelValues(kind).Add(float64(n))
}

func (r *Registry) SheetImported(kind string) {
	if r == nil {
		return
	}
	r.SheetsImported.WithLabelValues(kind).Inc()
}

func (r *Registry) SheetSkipped(reason string) {
	if r == nil {
		return
	}
	r.SheetsSkipped.WithLabelValues(reason).Inc()
}

func (r *Registry) RatioUnavailable(ratio string) {
	if r == nil {
		return
	}
	r.RatiosUnavailable.WithLabelValues(ratio).Inc()
}

func (r *Registry) StoreFailure(op string) {
	if r == nil {
		return
	}
	r.StoreFailures.WithLabelValues(op).Inc()
}

func (r *Registry) ReportBuilt() {
	if r == nil {
		return
	}
	r.ReportsBuilt.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
