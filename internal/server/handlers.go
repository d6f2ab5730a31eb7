package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"fomm/internal"
	"fomm/internal/pipeline"
	"fomm/internal/storage"
)

const (
	packedPreviewRows     = 5
	deviationsPreviewRows = 50
	defaultRunsLimit      = 50
)

type ctxKey string

const runKey ctxKey = "run"

// ErrResponse is the JSON body of every failed API call.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Error          string `json:"error"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errStatus(status int, err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: status, Error: err.Error()}
}

type TablePreview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func preview(t internal.Table, n int) TablePreview {
	records := t.Head(n).Records()
	return TablePreview{Columns: records[0], Rows: records[1:]}
}

type ProcessResponse struct {
	RunID             int                `json:"runId"`
	TraceID           string             `json:"traceId"`
	Files             int                `json:"files"`
	PackedRows        int                `json:"packedRows"`
	DeviationRows     int                `json:"deviationRows"`
	PackedMessage     string             `json:"packedMessage,omitempty"`
	DeviationsMessage string             `json:"deviationsMessage,omitempty"`
	Packed            TablePreview       `json:"packed"`
	Deviations        TablePreview       `json:"deviations"`
	Outcomes          []internal.Outcome `json:"outcomes"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.HTTPMaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		_ = render.Render(w, r, errStatus(http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err)))
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		_ = render.Render(w, r, errStatus(http.StatusBadRequest, errors.New("no files uploaded")))
		return
	}

	files := make([]internal.InputFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			_ = render.Render(w, r, errStatus(http.StatusBadRequest, err))
			return
		}
		blob, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			_ = render.Render(w, r, errStatus(http.StatusBadRequest, err))
			return
		}
		files = append(files, internal.InputFile{Name: fh.Filename, Content: blob})
	}

	run, err := s.svc.ProcessFiles(pipeline.SourceHTTP, nil, files)
	if err != nil {
		s.logger.Error("process upload failed", "err", err)
		_ = render.Render(w, r, errStatus(http.StatusInternalServerError, err))
		return
	}

	resp := ProcessResponse{
		RunID:         run.RunID,
		TraceID:       run.TraceID,
		Files:         len(files),
		PackedRows:    len(run.Packed.Rows),
		DeviationRows: len(run.Deviations.Rows),
		Packed:        preview(run.Packed, packedPreviewRows),
		Deviations:    preview(run.Deviations, deviationsPreviewRows),
		Outcomes:      run.Outcomes,
	}
	if run.Packed.Empty() {
		resp.PackedMessage = pipeline.PackedEmptyMessage
	}
	if run.Deviations.Empty() {
		resp.DeviationsMessage = pipeline.DeviationsEmptyMessage
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

type RunResponse struct {
	ID            int                `json:"id"`
	TraceID       string             `json:"traceId"`
	Source        string             `json:"source"`
	EmailID       *int               `json:"emailId,omitempty"`
	Files         int                `json:"files"`
	PackedRows    int                `json:"packedRows"`
	DeviationRows int                `json:"deviationRows"`
	CreatedAt     string             `json:"createdAt"`
	Outcomes      []internal.Outcome `json:"outcomes,omitempty"`
}

func newRunResponse(run internal.RunRow) RunResponse {
	return RunResponse{
		ID:            run.ID,
		TraceID:       run.TraceID,
		Source:        run.Source,
		EmailID:       run.EmailID,
		Files:         run.Files,
		PackedRows:    run.PackedRows,
		DeviationRows: run.DeviationRows,
		CreatedAt:     run.CreatedAt,
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			_ = render.Render(w, r, errStatus(http.StatusBadRequest, fmt.Errorf("invalid limit %q", v)))
			return
		}
		limit = n
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		_ = render.Render(w, r, errStatus(http.StatusInternalServerError, err))
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, newRunResponse(run))
	}
	render.JSON(w, r, out)
}

// runCtx loads the run named in the URL.
func (s *Server) runCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "runID"))
		if err != nil {
			_ = render.Render(w, r, errStatus(http.StatusBadRequest, errors.New("run id must be a number")))
			return
		}
		run, err := s.db.MustRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			_ = render.Render(w, r, errStatus(http.StatusNotFound, err))
			return
		}
		if err != nil {
			_ = render.Render(w, r, errStatus(http.StatusInternalServerError, err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), runKey, run)))
	})
}

func runFrom(r *http.Request) internal.RunRow {
	run, _ := r.Context().Value(runKey).(internal.RunRow)
	return run
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r)
	outcomes, err := s.db.GetOutcomes(run.ID)
	if err != nil {
		_ = render.Render(w, r, errStatus(http.StatusInternalServerError, err))
		return
	}
	resp := newRunResponse(run)
	resp.Outcomes = outcomes
	render.JSON(w, r, resp)
}

func (s *Server) downloadReport(kind string) http.HandlerFunc {
	fileName := pipeline.PackedFileName
	emptyMessage := pipeline.PackedEmptyMessage
	if kind == storage.ReportDeviations {
		fileName = pipeline.DeviationsFileName
		emptyMessage = pipeline.DeviationsEmptyMessage
	}

	return func(w http.ResponseWriter, r *http.Request) {
		run := runFrom(r)
		t, err := s.db.GetReport(run.ID, kind)
		if err != nil {
			_ = render.Render(w, r, errStatus(http.StatusInternalServerError, err))
			return
		}
		if t.Empty() {
			_ = render.Render(w, r, errStatus(http.StatusNotFound, errors.New(emptyMessage)))
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		if err := pipeline.WriteCSV(w, t, s.cfg.CSVEncoding); err != nil {
			s.logger.Error("write csv failed", "run_id", run.ID, "kind", kind, "err", err)
		}
	}
}
