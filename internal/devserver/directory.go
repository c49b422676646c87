// ABOUTME: HTTP directory endpoints of the development backend
// ABOUTME: Issues session tokens and routes create, join and match requests to the game socket
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request headers, matching the router client
const (
	headerAppID        = "X-Play-App-ID"
	headerUserID       = "X-Play-User-ID"
	headerSessionToken = "X-Play-Session-Token"
)

type ctxKey struct{}

type routeRequest struct {
	Cid              string         `json:"cid"`
	GameVersion      string         `json:"gameVersion"`
	ExpectMembers    []string       `json:"expectMembers"`
	Rejoin           bool           `json:"rejoin"`
	CreateOnNotFound bool           `json:"createOnNotFound"`
	ExpectAttr       map[string]any `json:"expectAttr"`
	PiggybackPeerID  string         `json:"piggybackPeerId"`
}

type routeResponse struct {
	Cid     string `json:"cid"`
	Addr    string `json:"addr"`
	Created bool   `json:"roomCreated,omitempty"`
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	appID, userID := r.Header.Get(headerAppID), r.Header.Get(headerUserID)
	if appID == "" || (s.config.AppID != "" && appID != s.config.AppID) {
		writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "unknown app")
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "missing user id")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()

	s.log.Debug("authorized", zap.String("user", userID))
	writeJSON(w, http.StatusOK, map[string]any{
		"lobbyAddr":    "http://" + r.Host,
		"sessionToken": token,
		"ttl":          int64(s.config.TokenTTL.Seconds()),
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		userID, ok := s.tokens[r.Header.Get(headerSessionToken)]
		s.mu.Unlock()

		if !ok {
			writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "invalid session token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (s *Server) decodeRoute(w http.ResponseWriter, r *http.Request) (*routeRequest, bool) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "malformed request")
		return nil, false
	}
	if !s.versionAccepted(req.GameVersion) {
		writeError(w, http.StatusBadRequest, protocol.CodeVersionMismatch, "game version mismatch")
		return nil, false
	}
	return &req, true
}

func gameAddr(r *http.Request) string {
	return "ws://" + r.Host + gameWSPath
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRoute(w, r)
	if !ok {
		return
	}

	name := req.Cid
	if name == "" {
		name = uuid.NewString()
	}

	s.mu.Lock()
	_, exists := s.rooms[name]
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusConflict, protocol.CodeInvalidRequest, "room "+name+" already exists")
		return
	}

	writeJSON(w, http.StatusOK, routeResponse{Cid: name, Addr: gameAddr(r), Created: true})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRoute(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	userID := r.Context().Value(ctxKey{}).(string)

	s.mu.Lock()
	rm := s.rooms[name]
	code := 0
	if rm != nil {
		if m := rm.memberByUser(userID); m != nil {
			if !req.Rejoin && m.active {
				code = protocol.CodeAlreadyInRoom
			}
		} else {
			code = rm.admit(userID)
		}
	}
	s.mu.Unlock()

	switch {
	case rm == nil && req.CreateOnNotFound:
		writeJSON(w, http.StatusOK, routeResponse{Cid: name, Addr: gameAddr(r), Created: true})
	case rm == nil:
		writeError(w, http.StatusNotFound, protocol.CodeRoomNotFound, "room "+name+" not found")
	case code != 0:
		writeError(w, http.StatusForbidden, code, "cannot join room "+name)
	default:
		writeJSON(w, http.StatusOK, routeResponse{Cid: name, Addr: gameAddr(r)})
	}
}

func (s *Server) handleMatchRoom(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRoute(w, r)
	if !ok {
		return
	}
	userID := r.Context().Value(ctxKey{}).(string)
	seeker := userID
	if req.PiggybackPeerID != "" {
		seeker = req.PiggybackPeerID
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	var found *room
	for _, name := range names {
		rm := s.rooms[name]
		if rm.visible && rm.admit(seeker) == 0 && rm.memberByUser(seeker) == nil && rm.matches(req.ExpectAttr) {
			found = rm
			break
		}
	}
	if found != nil && req.PiggybackPeerID != "" && !contains(found.expected, req.PiggybackPeerID) {
		found.expected = append(found.expected, req.PiggybackPeerID)
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusNotFound, protocol.CodeRoomNotFound, "no matching room")
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{Cid: found.name, Addr: gameAddr(r)})
}

func (s *Server) handleMyRoom(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(ctxKey{}).(string)

	s.mu.Lock()
	var found string
	for name, rm := range s.rooms {
		if rm.memberByUser(userID) != nil {
			found = name
			break
		}
	}
	s.mu.Unlock()

	if found == "" {
		writeError(w, http.StatusNotFound, protocol.CodeRoomNotFound, "user is not in a room")
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{Cid: found, Addr: gameAddr(r)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{"code": code, "error": msg})
}
