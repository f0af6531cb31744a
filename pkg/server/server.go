package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yurifrl/mizan/pkg/config"
	"github.com/yurifrl/mizan/pkg/csv"
	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/report"
	"github.com/yurifrl/mizan/pkg/store"
)

// maxUpload bounds the size of an uploaded workbook.
const maxUpload = 32 << 20

// Server serves the statement forms, uploads and reports over HTTP.
type Server struct {
	config   *config.Config
	logger   *log.Logger
	router   chi.Router
	store    store.Store
	tables   models.Tables
	parser   *parser.Parser
	importer *importer.Importer
	reports  *report.Builder
	metrics  *metrics.Registry
}

// New creates a new HTTP server backed by st.
func New(cfg *config.Config, st store.Store, tables models.Tables, logger *log.Logger, reg *metrics.Registry) *Server {
	s := &Server{
		config:   cfg,
		logger:   logger,
		store:    st,
		tables:   tables,
		parser:   parser.New(logger).WithXLSCharset(cfg.Import.XLSCharset),
		importer: importer.New(tables, st, logger, reg),
		reports:  report.NewBuilder(st, report.Options{TolerateFetchErrors: cfg.Report.TolerateFetchErrors}, logger, reg),
		metrics:  reg,
	}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)

	origins := s.config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/companies", s.handleCompanies)

		r.Route("/forms/{form}", func(r chi.Router) {
			r.Get("/get", s.handleFormGet)
			r.Post("/save", s.handleFormSave)
			r.Post("/reset", s.handleFormReset)
			r.Get("/export", s.handleFormExport)
		})

		r.Post("/comparison/save", s.handleComparisonSave)
		r.Post("/generate", s.handleGenerate)

		r.Post("/upload", s.handleUpload)
		r.Post("/upload/{form}", s.handleUploadForm)
	})

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// ---------------- companies and comparisons ----------------

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.store.Companies(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to list companies", err)
		return
	}
	if companies == nil {
		companies = []string{}
	}
	s.writeOK(w, r, companies)
}

// comparisonRequest is the body of /api/comparison/save and /api/generate.
type comparisonRequest struct {
	Company        string  `json:"company"`
	BaseYear       yearArg `json:"baseYear"`
	ComparisonYear yearArg `json:"comparisonYear"`
}

func (c comparisonRequest) comparison() models.Comparison {
	return models.Comparison{
		Company:        strings.TrimSpace(c.Company),
		BaseYear:       int(c.BaseYear),
		ComparisonYear: int(c.ComparisonYear),
	}
}

func (s *Server) handleComparisonSave(w http.ResponseWriter, r *http.Request) {
	var req comparisonRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := req.comparison()
	if err := c.Validate(); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := s.store.SaveComparison(r.Context(), c); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to save comparison", err)
		return
	}
	s.writeOK(w, r, map[string]any{"success": true, "comparison": c})
}

// handleGenerate builds the comparison report. ?format=csv downloads the rows
// instead; ?view=sections returns them grouped for display.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req comparisonRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := req.comparison()
	if err := c.Validate(); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rep, err := s.reports.BuildFor(r.Context(), c)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to build report", err)
		return
	}

	switch {
	case r.URL.Query().Get("format") == "csv":
		filename := fmt.Sprintf("%s-%d-%d.csv", c.Company, c.BaseYear, c.ComparisonYear)
		s.writeAttachment(w, r, "text/csv; charset=utf-8", filename, csv.Create(rep, nil))
	case r.URL.Query().Get("view") == "sections":
		s.writeOK(w, r, map[string]any{
			"report":   rep,
			"sections": rep.Sections(r.URL.Query().Get("all") == ""),
		})
	default:
		s.writeOK(w, r, rep)
	}
}

// ---------------- statement forms ----------------

type formRequest struct {
	Company string           `json:"company"`
	Year    yearArg          `json:"year"`
	Data    *models.Snapshot `json:"data,omitempty"`
}

func (s *Server) formKind(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "form"))
	if err != nil {
		s.respondError(w, r, http.StatusNotFound, err.Error(), nil)
		return 0, false
	}
	return kind, true
}

// queryTarget reads company and year from the query string.
func (s *Server) queryTarget(w http.ResponseWriter, r *http.Request) (importer.Target, bool) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if company == "" || err != nil || year <= 0 {
		s.respondError(w, r, http.StatusBadRequest, "company and year are required", nil)
		return importer.Target{}, false
	}
	return importer.Target{Company: company, Year: year}, true
}

func (s *Server) handleFormGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.formKind(w, r)
	if !ok {
		return
	}
	target, ok := s.queryTarget(w, r)
	if !ok {
		return
	}

	snap, err := s.store.Fetch(r.Context(), kind, target.Company, target.Year)
	if errors.Is(err, store.ErrNotFound) {
		s.writeOK(w, r, map[string]any{"data": nil})
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to fetch statement", err)
		return
	}
	s.writeOK(w, r, map[string]any{"data": snap})
}

func (s *Server) handleFormSave(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.formKind(w, r)
	if !ok {
		return
	}
	var req formRequest
	if !s.decode(w, r, &req) {
		return
	}
	company := strings.TrimSpace(req.Company)
	if company == "" || req.Year <= 0 || req.Data == nil {
		s.respondError(w, r, http.StatusBadRequest, "company, year and data are required", nil)
		return
	}

	snap := fillStatic(*req.Data, s.tables[kind])
	if err := s.store.Save(r.Context(), kind, company, int(req.Year), snap); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to save statement", err)
		return
	}
	s.logger.Info("saved statement", "kind", kind, "company", company, "year", int(req.Year))
	s.writeOK(w, r, map[string]any{"success": true})
}

func (s *Server) handleFormReset(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.formKind(w, r)
	if !ok {
		return
	}
	var req formRequest
	if !s.decode(w, r, &req) {
		return
	}
	company := strings.TrimSpace(req.Company)
	if company == "" || req.Year <= 0 {
		s.respondError(w, r, http.StatusBadRequest, "company and year are required", nil)
		return
	}
	if err := s.store.Reset(r.Context(), kind, company, int(req.Year)); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to reset statement", err)
		return
	}
	s.writeOK(w, r, map[string]any{"success": true})
}

func (s *Server) handleFormExport(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.formKind(w, r)
	if !ok {
		return
	}
	target, ok := s.queryTarget(w, r)
	if !ok {
		return
	}

	snap, err := s.store.Fetch(r.Context(), kind, target.Company, target.Year)
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, r, http.StatusNotFound, "statement not found", nil)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to fetch statement", err)
		return
	}

	var buf bytes.Buffer
	if err := parser.WriteStatement(&buf, s.tables[kind], snap); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to export statement", err)
		return
	}
	filename := fmt.Sprintf("%s-%s-%d.xlsx", kind, target.Company, target.Year)
	s.writeAttachment(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, buf.Bytes())
}

// fillStatic makes sure every key of table is present, so saved forms have
// the same shape whichever fields the client sent.
func fillStatic(snap models.Snapshot, table models.Table) models.Snapshot {
	out := models.NewSnapshot(table)
	for k, v := range snap.Static {
		out.Static[k] = v
	}
	if snap.Custom != nil {
		out.Custom = snap.Custom
	}
	return out
}

// ---------------- uploads ----------------

// readUpload returns the bytes and name of the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid upload", err)
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "file required", err)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return nil, "", false
	}
	return data, filepath.Base(header.Filename), true
}

func (s *Server) openWorkbook(w http.ResponseWriter, r *http.Request, data []byte, filename string) (parser.Workbook, bool) {
	wb, err := s.parser.ProcessBytes(data, filename)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, parser.ErrUnknownFileType) {
			status = http.StatusUnsupportedMediaType
		}
		s.respondError(w, r, status, "failed to process file", err)
		return nil, false
	}
	return wb, true
}

// handleUpload imports a workbook holding several statements. The form
// fields company, baseYear, comparisonYear and mode (base or comp) pick the
// year the sheets are saved under.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	c := models.Comparison{
		Company:        strings.TrimSpace(r.FormValue("company")),
		BaseYear:       atoi(r.FormValue("baseYear")),
		ComparisonYear: atoi(r.FormValue("comparisonYear")),
	}
	if err := c.Validate(); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	mode := models.Mode(r.FormValue("mode"))
	target := importer.TargetFor(c, mode)

	wb, ok := s.openWorkbook(w, r, data, filename)
	if !ok {
		return
	}

	results, err := s.importer.ImportWorkbook(r.Context(), wb, target)
	body := map[string]any{
		"file":   filename,
		"target": target,
		"sheets": results,
	}
	switch {
	case errors.Is(err, importer.ErrNoStatements):
		body["status"] = "error"
		body["error"] = err.Error()
		s.logger.Warn("upload has no statements", "file", filename, "sheets", len(results))
		s.writeJSONLogged(w, r, http.StatusUnprocessableEntity, body)
	case err != nil:
		body["status"] = "error"
		body["error"] = "failed to save statements"
		s.logger.Error("upload save failed", "file", filename, "err", err)
		s.writeJSONLogged(w, r, http.StatusInternalServerError, body)
	default:
		body["status"] = "success"
		s.writeJSONLogged(w, r, http.StatusOK, body)
	}
}

// handleUploadForm imports a file holding a single statement, whatever its
// sheet is called.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.formKind(w, r)
	if !ok {
		return
	}
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	target := importer.Target{
		Company: strings.TrimSpace(r.FormValue("company")),
		Year:    atoi(r.FormValue("year")),
	}
	if target.Company == "" || target.Year <= 0 {
		s.respondError(w, r, http.StatusBadRequest, "company and year are required", nil)
		return
	}

	wb, ok := s.openWorkbook(w, r, data, filename)
	if !ok {
		return
	}

	res, err := s.importer.ImportFile(r.Context(), wb, kind, target)
	if err != nil {
		var se *importer.SaveError
		status := http.StatusUnprocessableEntity
		if errors.As(err, &se) {
			status = http.StatusInternalServerError
		}
		s.respondError(w, r, status, "failed to import statement", err)
		return
	}
	s.writeOK(w, r, map[string]any{
		"status": "success",
		"file":   filename,
		"sheet":  res,
		"data":   res.Snapshot,
	})
}

// --- helpers ---

// yearArg accepts a year sent as a JSON number or string.
type yearArg int

func (y *yearArg) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*y = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid year %s", data)
	}
	*y = yearArg(n)
	return nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// decode reads a JSON body into v, answering 400 when it cannot.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, v any) {
	s.writeJSONLogged(w, r, http.StatusOK, v)
}

func (s *Server) writeJSONLogged(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := s.writeJSON(w, status, v); err != nil {
		s.logger.Warn("failed to write json response", "err", err, "path", r.URL.Path)
	}
}

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *Server) writeAttachment(w http.ResponseWriter, r *http.Request, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write attachment", "err", err, "path", r.URL.Path)
	}
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging logs each request and recovers panics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(ww, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
			s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"duration", time.Since(start), "remote", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}
