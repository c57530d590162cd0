package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/varsivault/vault-core/internal/domain"
)

// The stream endpoints expose the live subscriptions as server-sent
// events: each event is the full current snapshot of the watched
// collection. Closing the HTTP request unsubscribes and releases the
// underlying watch.

func (s *Server) handleStreamSessions(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	forUser := ownerIDFrom(r, actor)

	sub, err := s.sessions.StreamSessions(r.Context(), actor, forUser)
	if err != nil {
		writeError(w, err)
		return
	}
	serveSSE(w, r, sub, func(snap []*domain.Session) any {
		out := make([]sessionResponse, 0, len(snap))
		for _, v := range snap {
			out = append(out, toSessionResponse(v))
		}
		return out
	})
}

func (s *Server) handleStreamMessages(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	sub, err := s.sessions.StreamMessages(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	serveSSE(w, r, sub, func(snap []*domain.Message) any {
		out := make([]messageResponse, 0, len(snap))
		for _, v := range snap {
			out = append(out, toMessageResponse(v))
		}
		return out
	})
}

func (s *Server) handleStreamFiles(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	sub, err := s.sessions.StreamFiles(r.Context(), actor, ownerIDFrom(r, actor), sessionIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	serveSSE(w, r, sub, func(snap []*domain.File) any {
		out := make([]fileResponse, 0, len(snap))
		for _, v := range snap {
			out = append(out, toFileResponse(v))
		}
		return out
	})
}

func (s *Server) handleStreamMirror(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	filter := domain.MirrorFilter{
		OwnerID: domain.UserID(r.URL.Query().Get("owner_id")),
		Status:  domain.SessionStatus(r.URL.Query().Get("status")),
	}
	sub, err := s.sessions.StreamMirror(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	serveSSE(w, r, sub, func(snap []*domain.SessionProjection) any {
		out := make([]projectionResponse, 0, len(snap))
		for _, v := range snap {
			out = append(out, toProjectionResponse(v))
		}
		return out
	})
}

func serveSSE[T any](w http.ResponseWriter, r *http.Request, sub *domain.Subscription[T], encode func([]T) any) {
	defer sub.Unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-sub.Updates():
			if !open {
				return
			}
			data, err := json.Marshal(encode(snap))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
