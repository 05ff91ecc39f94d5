package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
	"github.com/studyduel/studyduel/quiz/service"
	"github.com/studyduel/studyduel/quiz/session"
	"github.com/studyduel/studyduel/transport/websocket"
)

// maxUploadBytes caps the total size of one multipart upload request.
const maxUploadBytes = 32 << 20

// Options tunes the server middleware.
type Options struct {
	// RatePerSecond and RateBurst throttle the unauthenticated endpoints
	// per client IP.
	RatePerSecond float64
	RateBurst     int
}

// Server is the REST API server.
type Server struct {
	service service.ExamService
	hub     *websocket.Hub
	router  *mux.Router
	limiter *ipLimiter
	logger  zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(examService service.ExamService, hub *websocket.Hub, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		service: examService,
		hub:     hub,
		router:  mux.NewRouter(),
		limiter: newIPLimiter(opts.RatePerSecond, opts.RateBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	// Session lifecycle. Create and join run before any token exists, so
	// they carry the per-IP rate limit instead of auth.
	s.router.HandleFunc("/session", s.rateLimited(s.handleCreateSession)).Methods("POST")
	s.router.HandleFunc("/session/{id}/join", s.rateLimited(s.handleJoinSession)).Methods("POST")

	// Examiner operations.
	s.router.HandleFunc("/session/{id}/upload", s.requireRole(engine.RoleExaminer, s.handleUpload)).Methods("POST")
	s.router.HandleFunc("/session/{id}/generate", s.requireRole(engine.RoleExaminer, s.handleGenerate)).Methods("POST")
	s.router.HandleFunc("/session/{id}/questions", s.requireRole(engine.RoleExaminer, s.handleQuestions)).Methods("GET")
	s.router.HandleFunc("/session/{id}/reveal", s.requireRole(engine.RoleExaminer, s.handleReveal)).Methods("POST")
	s.router.HandleFunc("/session/{id}/next", s.requireRole(engine.RoleExaminer, s.handleNext)).Methods("POST")
	s.router.HandleFunc("/session/{id}/grade", s.requireRole(engine.RoleExaminer, s.handleGrade)).Methods("POST")
	s.router.HandleFunc("/session/{id}/jump/{index}", s.requireRole(engine.RoleExaminer, s.handleJump)).Methods("POST")

	// Learner operations.
	s.router.HandleFunc("/session/{id}/current", s.requireRole(engine.RoleLearner, s.handleCurrent)).Methods("GET")

	// Push channel.
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// writeErr maps service and engine errors to the HTTP error envelope.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, service.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
	case errors.Is(err, service.ErrRoleOccupied):
		respondError(w, http.StatusConflict, "role_occupied", "role already occupied")
	case errors.Is(err, service.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "invalid_role", "role must be examiner or learner")
	case errors.Is(err, service.ErrNoPDFTexts):
		respondError(w, http.StatusBadRequest, "no_pdf_texts", "pdf_texts must not be empty")
	case errors.Is(err, engine.ErrNoQuestions):
		respondError(w, http.StatusConflict, "no_questions", "no questions in session")
	case errors.Is(err, engine.ErrAlreadyRevealed):
		respondError(w, http.StatusConflict, "already_revealed", "current question is already revealed")
	case errors.Is(err, engine.ErrNotRevealed):
		respondError(w, http.StatusConflict, "not_revealed", "current question is not revealed")
	case errors.Is(err, engine.ErrIndexMismatch):
		respondError(w, http.StatusConflict, "index_mismatch", "grade index does not match current question")
	case errors.Is(err, engine.ErrAtEnd):
		respondError(w, http.StatusConflict, "at_end", "already at the last question")
	case errors.Is(err, engine.ErrIndexOutOfRange):
		respondError(w, http.StatusBadRequest, "index_out_of_range", "question index out of range")
	case errors.Is(err, engine.ErrInvalidGrade):
		respondError(w, http.StatusBadRequest, "invalid_grade", "status must be ok, meh or fail")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// requireRole authenticates the X-Token header against the session and
// rejects callers holding the other role's token.
func (s *Server) requireRole(role engine.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]

		tok := r.Header.Get("X-Token")
		if tok == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing X-Token header")
			return
		}

		got, err := s.service.Authenticate(r.Context(), sessionID, tok)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		if got != role {
			respondError(w, http.StatusUnauthorized, "unauthorized", "token does not grant the "+string(role)+" role")
			return
		}

		next(w, r)
	}
}

// broadcast pushes the post-mutation state to connected clients, role-scoped.
func (s *Server) broadcast(r *http.Request, snap *engine.Snapshot) {
	if s.hub == nil || snap == nil {
		return
	}
	view, err := s.service.LearnerCurrent(r.Context(), snap.SessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", snap.SessionID).Msg("broadcast view failed")
		return
	}
	s.hub.BroadcastToSession(snap.SessionID, view, snap)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.CreateSession(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	tok, err := s.service.JoinSession(r.Context(), sessionID, engine.Role(req.Role))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"token": tok,
		"role":  req.Role,
	})
}

// Study Material Handlers

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	// MaxBytesReader rejects oversized bodies outright; ParseMultipartForm's
	// argument only bounds the in-memory portion before spooling to disk.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}

	var uploads []service.PDFUpload
	for _, headers := range r.MultipartForm.File {
		for _, h := range headers {
			if !strings.EqualFold(filepath.Ext(h.Filename), ".pdf") {
				respondError(w, http.StatusBadRequest, "bad_request", "only .pdf files are accepted")
				return
			}
			uploads = append(uploads, service.PDFUpload{
				Filename: filepath.Base(h.Filename),
				Size:     h.Size,
			})
		}
	}
	if len(uploads) == 0 {
		respondError(w, http.StatusBadRequest, "bad_request", "no files in request")
		return
	}

	snap, err := s.service.AddPDFs(r.Context(), sessionID, uploads)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		PDFTexts map[string]string `json:"pdf_texts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	snap, err := s.service.GenerateQuestions(r.Context(), sessionID, req.PDFTexts)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

// Progression Handlers

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	snap, err := s.service.Reveal(r.Context(), sessionID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	snap, err := s.service.Next(r.Context(), sessionID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Index  *int   `json:"index"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		respondError(w, http.StatusBadRequest, "bad_request", "body must carry index and status")
		return
	}

	snap, err := s.service.Grade(r.Context(), sessionID, *req.Index, engine.GradeStatus(req.Status))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "index must be an integer")
		return
	}

	snap, err := s.service.Jump(r.Context(), sessionID, index)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.broadcast(r, snap)
	respondJSON(w, http.StatusOK, snap)
}

// Projection Handlers

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	view, err := s.service.LearnerCurrent(r.Context(), sessionID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	snap, err := s.service.ExaminerSnapshot(r.Context(), sessionID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "session parameter required")
		return
	}

	tok := r.URL.Query().Get("token")
	if tok == "" {
		tok = r.Header.Get("X-Token")
	}
	if tok == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}

	role, err := s.service.Authenticate(r.Context(), sessionID, tok)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	// Broadcasts are keyed by the canonical uppercase session code.
	s.hub.ServeWS(w, r, strings.ToUpper(sessionID), role)
}

// Health check

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
