// ABOUTME: Room routing calls of the directory service
// ABOUTME: Create, join, random match and lookup of the caller's current room
package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Resonate-Protocol/play-go/internal/version"
	"go.uber.org/zap"
)

const (
	roomPath   = "1/multiplayer/lobby/room"
	matchPath  = "1/multiplayer/lobby/match/room"
	myRoomPath = "1/multiplayer/lobby/peer/self/room"
)

// RoomRoute tells the client which game server hosts a room
type RoomRoute struct {
	RoomID  string `json:"cid"`
	URL     string `json:"addr"`
	Created bool   `json:"roomCreated"`
}

// JoinRoomParams describes a named join
type JoinRoomParams struct {
	Name             string
	ExpectedUserIDs  []string
	Rejoin           bool
	CreateOnNotFound bool
}

type routeRequest struct {
	Cid              string         `json:"cid,omitempty"`
	GameVersion      string         `json:"gameVersion"`
	SDKVersion       string         `json:"sdkVersion"`
	ProtocolVersion  string         `json:"protocolVersion"`
	UseInsecureAddr  bool           `json:"useInsecureAddr"`
	ExpectMembers    []string       `json:"expectMembers,omitempty"`
	Rejoin           bool           `json:"rejoin,omitempty"`
	CreateOnNotFound bool           `json:"createOnNotFound,omitempty"`
	ExpectAttr       map[string]any `json:"expectAttr,omitempty"`
	PiggybackPeerID  string         `json:"piggybackPeerId,omitempty"`
}

func (s *Service) newRouteRequest() routeRequest {
	return routeRequest{
		GameVersion:     s.config.GameVersion,
		SDKVersion:      version.SDKVersion(),
		ProtocolVersion: version.ProtocolVersion,
		UseInsecureAddr: s.config.Insecure,
	}
}

// CreateRoom reserves a game server for a new room. An empty name lets the server pick one.
func (s *Service) CreateRoom(ctx context.Context, name string) (*RoomRoute, error) {
	req := s.newRouteRequest()
	req.Cid = name
	return s.route(ctx, http.MethodPost, roomPath, req)
}

// JoinRoom resolves the game server hosting a named room
func (s *Service) JoinRoom(ctx context.Context, params JoinRoomParams) (*RoomRoute, error) {
	req := s.newRouteRequest()
	req.Cid = params.Name
	req.ExpectMembers = params.ExpectedUserIDs
	req.Rejoin = params.Rejoin
	req.CreateOnNotFound = params.CreateOnNotFound
	return s.route(ctx, http.MethodPost, roomPath+"/"+url.PathEscape(params.Name), req)
}

// JoinRandomRoom finds an open room whose lobby-visible properties match matchProps
func (s *Service) JoinRandomRoom(ctx context.Context, matchProps map[string]any, expectedUserIDs []string) (*RoomRoute, error) {
	req := s.newRouteRequest()
	req.ExpectAttr = matchProps
	req.ExpectMembers = expectedUserIDs
	return s.route(ctx, http.MethodPost, matchPath, req)
}

// MatchRandom reserves a seat for piggybackUserID in a matching room without joining
func (s *Service) MatchRandom(ctx context.Context, piggybackUserID string, matchProps map[string]any, expectedUserIDs []string) (*RoomRoute, error) {
	req := s.newRouteRequest()
	req.ExpectAttr = matchProps
	req.ExpectMembers = expectedUserIDs
	req.PiggybackPeerID = piggybackUserID
	return s.route(ctx, http.MethodPost, matchPath, req)
}

// FetchMyRoom looks up the room the current user is a member of
func (s *Service) FetchMyRoom(ctx context.Context) (*RoomRoute, error) {
	return s.route(ctx, http.MethodGet, myRoomPath, nil)
}

func (s *Service) route(ctx context.Context, method, path string, body any) (*RoomRoute, error) {
	info, err := s.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	var route RoomRoute
	target := strings.TrimRight(info.URL, "/") + "/" + path
	if err := s.do(ctx, method, target, info.SessionToken, body, &route); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	s.log.Debug("room routed", zap.String("room", route.RoomID), zap.String("addr", route.URL), zap.Bool("created", route.Created))
	return &route, nil
}
