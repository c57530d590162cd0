package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	filesapp "github.com/varsivault/vault-core/internal/app/files"
	"github.com/varsivault/vault-core/internal/app/replication"
	"github.com/varsivault/vault-core/internal/domain"
)

// ActorResolver turns a bearer token into the acting principal.
type ActorResolver interface {
	ActorFromToken(token string) (domain.Actor, error)
}

type Server struct {
	sessions *replication.Service
	files    *filesapp.Service
	identity ActorResolver
}

func NewServer(sessions *replication.Service, files *filesapp.Service, identity ActorResolver) http.Handler {
	s := &Server{sessions: sessions, files: files, identity: identity}

	r := chi.NewRouter()
	r.Use(withLogging, withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withActor)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/stream", s.handleStreamSessions)
		r.Get("/mirror/sessions/stream", s.handleStreamMirror)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/close", s.handleCloseSession)
			r.Patch("/visibility", s.handleToggleVisibility)

			r.Post("/messages", s.handleAddMessage)
			r.Get("/messages/stream", s.handleStreamMessages)

			r.Post("/files", s.handleUploadFile)
			r.Get("/files/stream", s.handleStreamFiles)
			r.Delete("/files", s.handleDeleteAllFiles)
			r.Delete("/files/{fileID}", s.handleDeleteFile)
		})
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	Subject string `json:"subject"`
	Context string `json:"context"`
	Mode    string `json:"mode,omitempty"`
}

type sessionResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Subject      string     `json:"subject"`
	Context      string     `json:"context"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	Hidden       bool       `json:"hidden"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type projectionResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	OwnerEmail string   `json:"owner_email"`
	Subject   string    `json:"subject"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type addMessageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type fileResponse struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	StoragePath string    `json:"storage_path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

type visibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// ─────────────────────────────────────────────
// Session handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		badRequest(w, "subject is required")
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), replication.CreateSessionInput{
		Actor:   actorFrom(r),
		Subject: req.Subject,
		Context: req.Context,
		Mode:    parseMode(req.Mode),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := s.sessions.DeleteSession(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := s.sessions.CloseSession(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	actor := actorFrom(r)
	if err := s.sessions.ToggleVisibility(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r), req.Hidden); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Message handlers
// ─────────────────────────────────────────────

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(w, "content is required")
		return
	}

	actor := actorFrom(r)
	msg, err := s.sessions.AddMessage(r.Context(), replication.AddMessageInput{
		Actor:     actor,
		SessionID: sessionIDFrom(r),
		OwnerID:   ownerIDFrom(r, actor),
		Content:   req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// ─────────────────────────────────────────────
// File handlers
// ─────────────────────────────────────────────

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	actor := actorFrom(r)
	uploaded, err := s.files.Upload(r.Context(), filesapp.UploadInput{
		Actor:       actor,
		OwnerID:     ownerIDFrom(r, actor),
		SessionID:   sessionIDFrom(r),
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileResponse(uploaded))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ownerID := ownerIDFrom(r, actor)
	sessionID := sessionIDFrom(r)
	fileID := domain.FileID(chi.URLParam(r, "fileID"))

	list, err := s.files.List(r.Context(), actor, ownerID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	var target *domain.File
	for _, f := range list {
		if f.ID == fileID {
			target = f
			break
		}
	}
	if target == nil {
		writeError(w, domain.ErrNotFound)
		return
	}

	if err := s.files.Delete(r.Context(), actor, ownerID, target); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllFiles(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := s.files.DeleteAll(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func sessionIDFrom(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "sessionID"))
}

// ownerIDFrom picks the owner partition: staff name it with ?owner_id= to
// operate on a student's session, everyone else gets their own.
func ownerIDFrom(r *http.Request, actor domain.Actor) domain.UserID {
	if v := r.URL.Query().Get("owner_id"); v != "" {
		return domain.UserID(v)
	}
	return actor.ID
}

func parseMode(s string) domain.SessionMode {
	if strings.EqualFold(strings.TrimSpace(s), string(domain.ModeFullSolution)) {
		return domain.ModeFullSolution
	}
	return domain.ModeInteractive
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:           string(s.ID),
		OwnerID:      string(s.OwnerID),
		Subject:      s.Subject,
		Context:      s.Context,
		Mode:         string(s.Mode),
		Status:       string(s.Status),
		Hidden:       s.Hidden,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		LastActiveAt: s.LastActiveAt,
		ClosedAt:     s.ClosedAt,
	}
}

func toProjectionResponse(p *domain.SessionProjection) projectionResponse {
	return projectionResponse{
		ID:         string(p.ID),
		OwnerID:    string(p.OwnerID),
		OwnerEmail: p.OwnerEmail,
		Subject:    p.Subject,
		Mode:       string(p.Mode),
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:         string(m.ID),
		SessionID:  string(m.SessionID),
		SenderID:   string(m.SenderID),
		SenderRole: string(m.SenderRole),
		SenderName: m.SenderName,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

func toFileResponse(f *domain.File) fileResponse {
	return fileResponse{
		ID:          string(f.ID),
		SessionID:   string(f.SessionID),
		OwnerID:     string(f.OwnerID),
		Name:        f.Name,
		StoragePath: f.StoragePath,
		Size:        f.Size,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps the domain taxonomy to status codes. Permission and
// not-found failures are explicit rejections, never silent empties.
func writeError(w http.ResponseWriter, err error) {
	var partial *domain.PartialDeletionError
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "deletion incomplete, retry to resume",
			"step":  string(partial.Step),
		})
	case errors.Is(err, domain.ErrTransientStore):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "store unavailable, retry"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
