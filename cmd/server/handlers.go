package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/SpectralSplit/pkg/logger"
	"github.com/himanishpuri/SpectralSplit/pkg/spectralsplit"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service spectralsplit.Service
	config  *ServerConfig
	log     spectralsplit.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	LogRequests    bool
}

// NewServer creates a new server instance
func NewServer(service spectralsplit.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondServiceError maps a service error onto a status code.
func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Errorf("%s failed: %v", op, err)
	} else {
		s.log.Warnf("%s rejected: %v", op, err)
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		unsupported *spectralsplit.UnsupportedFormatError
		partCount   *spectralsplit.InvalidPartCountError
		badRange    *spectralsplit.InvalidRangeError
		badRequest  *spectralsplit.InvalidRequestError
	)
	switch {
	case errors.As(err, &unsupported),
		errors.As(err, &partCount),
		errors.As(err, &badRange),
		errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.Is(err, spectralsplit.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, spectralsplit.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, spectralsplit.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, spectralsplit.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "SpectralSplit API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"metrics":        "GET /api/health/metrics",
			"upload":         "POST /api/upload",
			"process":        "POST /api/process",
			"artifacts":      "GET /api/artifacts",
			"getArtifact":    "GET /api/artifacts/{id}",
			"deleteArtifact": "DELETE /api/artifacts/{id}",
			"spectrogram":    "GET /api/artifacts/{id}/spectrogram",
			"play":           "GET /temp/{id}",
			"download":       "GET /download/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to collect stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status: "healthy",
		Stats:  *stats,
	})
}

// handleUpload handles POST /api/upload (multipart field "audio_file")
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(uploadFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "Upload exceeds 100 MB")
			return
		}
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()

	s.log.Infof("Received upload: %s (%d bytes)", header.Filename, header.Size)
	res, err := s.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		s.respondServiceError(w, "Upload", err)
		return
	}

	s.respondJSON(w, http.StatusCreated, UploadResponse{
		Message:  "Upload denoised successfully",
		Original: toDTO(res.Original),
		Denoised: toDTO(res.Denoised),
		Stats:    res.Stats,
	})
}

// handleProcess handles POST /api/process
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body *ProcessRequestBody
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		body = &ProcessRequestBody{}
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(body); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
			return
		}
		var err error
		body, err = parseProcessForm(r.FormValue)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	arts, err := s.service.Process(r.Context(), body.ToRequest())
	if err != nil {
		s.respondServiceError(w, "Process", err)
		return
	}

	s.respondJSON(w, http.StatusOK, ProcessResponse{
		Files: toDTOs(arts),
		Count: len(arts),
	})
}

// handleListArtifacts handles GET /api/artifacts[?stage=]
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	stage, err := spectralsplit.ParseStage(r.URL.Query().Get("stage"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	arts, err := s.service.ListArtifacts(stage)
	if err != nil {
		s.log.Errorf("Failed to list artifacts: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve artifacts")
		return
	}
	s.respondJSON(w, http.StatusOK, ListArtifactsResponse{
		Artifacts: toDTOs(arts),
		Count:     len(arts),
	})
}

// handleGetArtifact handles GET /api/artifacts/{id}
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request, id string) {
	a, err := s.service.GetArtifact(id)
	if err != nil {
		s.respondServiceError(w, "GetArtifact", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toDTO(*a))
}

// handleDeleteArtifact handles DELETE /api/artifacts/{id}
func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteArtifact(r.Context(), id); err != nil {
		s.respondServiceError(w, "DeleteArtifact", err)
		return
	}
	s.log.Infof("Deleted artifact %s", id)
	s.respondJSON(w, http.StatusOK, DeleteArtifactResponse{
		Message: "Artifact deleted successfully",
		ID:      id,
	})
}

// handleSpectrogram handles GET /api/artifacts/{id}/spectrogram
func (s *Server) handleSpectrogram(w http.ResponseWriter, r *http.Request, id string) {
	var buf bytes.Buffer
	if err := s.service.Spectrogram(r.Context(), id, &buf); err != nil {
		s.respondServiceError(w, "Spectrogram", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

// serveArtifact streams the stored WAV, inline or as an attachment.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, id string, attachment bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rc, a, err := s.service.Open(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, "Open", err)
		return
	}
	defer rc.Close()

	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": a.Filename()}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, a.Filename(), a.CreatedAt, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warnf("Streaming %s aborted: %v", id, err)
	}
}

// handleArtifacts routes requests to /api/artifacts
func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleListArtifacts(w, r)
}

// handleArtifact routes requests to /api/artifacts/{id}[/spectrogram]
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(r.URL.Path[len("/api/artifacts/"):], "/")
	if rest == "" {
		s.respondError(w, http.StatusBadRequest, "Artifact ID required")
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	switch {
	case sub == "spectrogram" && r.Method == http.MethodGet:
		s.handleSpectrogram(w, r, id)
	case sub != "":
		http.NotFound(w, r)
	case r.Method == http.MethodGet:
		s.handleGetArtifact(w, r, id)
	case r.Method == http.MethodDelete:
		s.handleDeleteArtifact(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// artifactIDFromPath accepts both /prefix/{id} and /prefix/{id}.wav
func artifactIDFromPath(path, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), ".wav")
}

// handleTemp handles GET /temp/{id} (inline playback)
func (s *Server) handleTemp(w http.ResponseWriter, r *http.Request) {
	id := artifactIDFromPath(r.URL.Path, "/temp/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	s.serveArtifact(w, r, id, false)
}

// handleDownload handles GET /download/{id} (forced download)
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := artifactIDFromPath(r.URL.Path, "/download/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	s.serveArtifact(w, r, id, true)
}
