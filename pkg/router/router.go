// ABOUTME: HTTP client for the Play directory and authorization service
// ABOUTME: Issues session credentials and resolves room names to game server routes
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	"go.uber.org/zap"
)

// Request headers understood by the directory service
const (
	HeaderAppID        = "X-Play-App-ID"
	HeaderAppKey       = "X-Play-App-Key"
	HeaderUserID       = "X-Play-User-ID"
	HeaderSessionToken = "X-Play-Session-Token"
)

const (
	authorizePath = "1/multiplayer/router/authorize"
	lobbyWSPath   = "1/multiplayer/lobby/websocket"
)

// Config holds directory client configuration
type Config struct {
	// Server is the router base URL. A bare host gets https://, or http:// when Insecure.
	Server      string
	AppID       string
	AppKey      string
	UserID      string
	GameVersion string
	Insecure    bool
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// LobbyInfo is the result of an authorization
type LobbyInfo struct {
	URL          string `json:"lobbyAddr"`
	SessionToken string `json:"sessionToken"`
	TTL          int64  `json:"ttl"`

	expiresAt time.Time
}

// Valid reports whether the credential can still be used
func (l *LobbyInfo) Valid(now time.Time) bool {
	return l != nil && now.Before(l.expiresAt)
}

// Service talks to the directory service. Authorization results are cached
// until their TTL runs out.
type Service struct {
	config Config
	client *http.Client
	log    *zap.Logger
	server string

	mu    sync.Mutex
	lobby *LobbyInfo
	now   func() time.Time
}

// NewService creates a directory client
func NewService(config Config) *Service {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := strings.TrimRight(config.Server, "/")
	if !strings.Contains(server, "://") {
		scheme := "https://"
		if config.Insecure {
			scheme = "http://"
		}
		server = scheme + server
	}

	return &Service{
		config: config,
		client: client,
		log:    logger,
		server: server,
		now:    time.Now,
	}
}

// Authorize returns a cached credential or fetches a new one
func (s *Service) Authorize(ctx context.Context) (*LobbyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lobby.Valid(s.now()) {
		return s.lobby, nil
	}

	var info LobbyInfo
	if err := s.do(ctx, http.MethodPost, s.server+"/"+authorizePath, "", nil, &info); err != nil {
		return nil, fmt.Errorf("authorize failed: %w", err)
	}
	info.expiresAt = s.now().Add(time.Duration(info.TTL) * time.Second)
	s.lobby = &info

	s.log.Debug("authorized", zap.String("lobby", info.URL), zap.Int64("ttl", info.TTL))
	return s.lobby, nil
}

// Reset drops the cached credential
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobby = nil
}

// LobbyURL derives the lobby websocket URL from an authorization result
func LobbyURL(info *LobbyInfo) (string, error) {
	u, err := url.Parse(info.URL)
	if err != nil {
		return "", fmt.Errorf("invalid lobby address %q: %w", info.URL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + lobbyWSPath
	return u.String(), nil
}

// do sends a JSON request and decodes a JSON response into out.
// Non-2xx answers are returned as *protocol.Error.
func (s *Service) do(ctx context.Context, method, target, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAppID, s.config.AppID)
	req.Header.Set(HeaderAppKey, s.config.AppKey)
	req.Header.Set(HeaderUserID, s.config.UserID)
	if token != "" {
		req.Header.Set(HeaderSessionToken, token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Code  int    `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Code == 0 {
		return &protocol.Error{Code: status, Detail: strings.TrimSpace(string(data))}
	}
	return &protocol.Error{Code: body.Code, Detail: body.Error}
}
