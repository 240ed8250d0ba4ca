// Package server is the thin HTTP layer over the retrieval pipeline. It
// owns request decoding, upload handling and status codes; all retrieval
// semantics live in the rag package.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"document-chat/internal/config"
	"document-chat/internal/models"
	"document-chat/internal/parser"
)

// Pipeline is the retrieval core the server wraps.
type Pipeline interface {
	IngestReplace(ctx context.Context, docs map[string]string) (*models.IngestReport, error)
	Answer(ctx context.Context, query string) (*models.ChatResult, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	Clear(ctx context.Context) error
}

// HealthChecker probes the embedding/generation backend for readiness.
type HealthChecker interface {
	CheckHealth(ctx context.Context) ([]string, error)
	Model() string
}

// Extractor turns a saved file into raw text.
type Extractor func(path string) (string, error)

type Server struct {
	pipeline Pipeline
	health   HealthChecker
	extract  Extractor
	cfg      *config.Config
}

func New(pipeline Pipeline, health HealthChecker, cfg *config.Config) *Server {
	return &Server{
		pipeline: pipeline,
		health:   health,
		extract:  parser.Extract,
		cfg:      cfg,
	}
}

// Routes builds the HTTP handler with logging and request-ID middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	return withLogging(mux)
}

// ListenAndServe blocks serving the configured address.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("http server listening")
	return http.ListenAndServe(addr, s.Routes())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Missing query parameter", "")
		return
	}
	query := strings.TrimSpace(body.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty", "")
		return
	}

	// Distinguish "service down" from "no data" before touching the store.
	if err := s.checkBackend(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable,
			"Ollama is not running or model is not available",
			fmt.Sprintf("Please ensure Ollama is running and model %q is installed", s.health.Model()))
		return
	}

	result, err := s.pipeline.Answer(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) checkBackend(ctx context.Context) error {
	names, err := s.health.CheckHealth(ctx)
	if err != nil {
		return err
	}
	model := s.health.Model()
	for _, name := range names {
		if strings.Contains(name, model) || strings.Contains(model, name) {
			return nil
		}
	}
	return fmt.Errorf("model %q not installed", model)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	docs, warnings, err := s.collectDocuments(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if len(docs) == 0 {
		msg := "No documents found or processed"
		if len(warnings) > 0 {
			msg += ". Errors: " + strings.Join(warnings, "; ")
		}
		writeError(w, http.StatusBadRequest, msg,
			"Please upload valid PDF, Word, PowerPoint, spreadsheet, Markdown, or TXT files")
		return
	}

	report, err := s.pipeline.IngestReplace(r.Context(), docs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Ingestion failed", err.Error())
		return
	}
	report.Warnings = append(warnings, report.Warnings...)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "success",
		"documents_processed": report.DocumentsProcessed,
		"total_chunks":        report.TotalChunks,
		"files":               report.Files,
		"warnings":            report.Warnings,
	})
}

// collectDocuments reads uploaded files into the documents directory and
// extracts them, or falls back to re-reading the configured directory
// when the request carries no files.
func (s *Server) collectDocuments(r *http.Request) (map[string]string, []string, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		// No multipart body: re-ingest from the configured directory.
		docs, warnings, dirErr := parser.ExtractDir(s.cfg.RAG.DocumentsDir)
		if dirErr != nil {
			return nil, nil, fmt.Errorf("no files uploaded and documents directory unreadable: %w", dirErr)
		}
		return docs, warnings, nil
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, nil, errors.New("No files selected")
	}

	if err := os.MkdirAll(s.cfg.RAG.DocumentsDir, 0o755); err != nil {
		return nil, nil, err
	}

	docs := make(map[string]string)
	var warnings []string
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "" || name == "." {
			continue
		}
		dst := filepath.Join(s.cfg.RAG.DocumentsDir, name)
		if err := saveUpload(fh, dst); err != nil {
			warnings = append(warnings, name+": "+err.Error())
			continue
		}
		text, err := s.extract(dst)
		if err != nil {
			warnings = append(warnings, name+": "+err.Error())
			continue
		}
		docs[name] = text
	}
	return docs, warnings, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	ollama := "running"
	if err := s.checkBackend(r.Context()); err != nil {
		status = "degraded"
		ollama = "not running"
	}
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"ollama": ollama,
		"model":  s.health.Model(),
		"vector_store": map[string]any{
			"total_vectors": stats.TotalVectors,
			"total_chunks":  stats.TotalChunks,
		},
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, code int, errMsg, detail string) {
	body := map[string]string{"error": errMsg}
	if detail != "" {
		body["message"] = detail
	}
	writeJSON(w, code, body)
}
