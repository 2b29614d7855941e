package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cat := s.rec.Catalog()
	stats := s.rec.Engine().Compiler().Stats()
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:            "healthy",
		Version:           s.cfg.Version,
		Formats:           cat.Len(),
		Patterns:          cat.PatternCount(),
		CompiledTemplates: stats.Entries,
		CompileFailures:   stats.Failures,
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req protocol.RecommendRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, status, err := s.recommend(r.Context(), req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecommendBatch(w http.ResponseWriter, r *http.Request) {
	var req protocol.BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, status, err := s.recommendBatch(r.Context(), req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recommend(ctx context.Context, req protocol.RecommendRequest) (*protocol.RecommendResponse, int, error) {
	if strings.TrimSpace(req.Line) == "" {
		return nil, http.StatusBadRequest, errors.New("line is required")
	}

	start := time.Now()
	opts := recommend.OptionsFromWire(req.Options, s.cfg.Defaults)
	recs, err := s.rec.Recommend(ctx, req.Line, opts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Recommend failed")
		return nil, http.StatusServiceUnavailable, fmt.Errorf("recommend: %w", err)
	}

	s.logger.Debug().
		Int("results", len(recs)).
		Dur("elapsed", time.Since(start)).
		Msg("Recommend served")

	return &protocol.RecommendResponse{
		Recommendations: recommend.WireList(recs),
		ElapsedMs:       elapsedMs(start),
	}, http.StatusOK, nil
}

func (s *Server) recommendBatch(ctx context.Context, req protocol.BatchRequest) (*protocol.BatchResponse, int, error) {
	if len(req.Lines) == 0 {
		return nil, http.StatusBadRequest, errors.New("lines are required")
	}
	if len(req.Lines) > s.cfg.MaxBatchLines {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("batch exceeds %d lines", s.cfg.MaxBatchLines)
	}

	start := time.Now()
	opts := recommend.OptionsFromWire(req.Options, s.cfg.Defaults)
	resp := &protocol.BatchResponse{Lines: len(req.Lines)}

	if req.PerLine {
		results, err := s.rec.RecommendBatchPerLine(ctx, req.Lines, opts)
		if err != nil {
			return nil, http.StatusServiceUnavailable, fmt.Errorf("recommend batch: %w", err)
		}
		resp.PerLine = make([][]types.Recommendation, len(results))
		for i, recs := range results {
			resp.PerLine[i] = recommend.WireList(recs)
		}
	} else {
		recs, err := s.rec.RecommendBatch(ctx, req.Lines, opts)
		if err != nil {
			return nil, http.StatusServiceUnavailable, fmt.Errorf("recommend batch: %w", err)
		}
		resp.Recommendations = recommend.WireList(recs)
	}

	resp.ElapsedMs = elapsedMs(start)
	s.logger.Info().
		Int("lines", len(req.Lines)).
		Bool("per_line", req.PerLine).
		Float64("elapsed_ms", resp.ElapsedMs).
		Msg("Batch served")
	return resp, http.StatusOK, nil
}

func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	formats := s.rec.AvailableFormats()
	if group := r.URL.Query().Get("group"); group != "" {
		formats = s.rec.FormatsByGroup(group)
	}

	summaries := make([]types.FormatSummary, 0, len(formats))
	for _, f := range formats {
		summaries = append(summaries, recommend.Summary(f))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetFormat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	f, ok := s.rec.Format(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Format not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.GroupStatistics())
}

func (s *Server) handleVendorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.VendorStatistics())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.rec.Reload(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recommend.ErrNoSource) {
			status = http.StatusNotImplemented
		}
		writeError(w, status, err.Error())
		return
	}

	s.logger.Info().Int("formats", n).Str("remote", r.RemoteAddr).Msg("Catalog reloaded via API")
	writeJSON(w, http.StatusOK, protocol.ReloadResponse{Formats: n})
}

// handleValidate runs the catalog self-check. ?status=fail|warning|pass keeps
// only results with that status; the counts always cover the whole catalog.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	report, err := s.rec.Validate(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if status := recommend.CheckStatus(strings.ToLower(r.URL.Query().Get("status"))); status != "" {
		kept := make([]recommend.TemplateCheck, 0, len(report.Results))
		for _, c := range report.Results {
			if c.Status == status {
				kept = append(kept, c)
			}
		}
		report.Results = kept
	}

	s.logger.Info().
		Int("failed", report.Failed).
		Str("remote", r.RemoteAddr).
		Msg("Catalog validated via API")
	writeJSON(w, http.StatusOK, report)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
