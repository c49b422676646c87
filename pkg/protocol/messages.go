// ABOUTME: Play wire protocol message definitions
// ABOUTME: JSON command envelope with typed request, response and notification bodies
package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandType is the top level command family of a message.
type CommandType string

const (
	CmdSession CommandType = "session"
	CmdConv    CommandType = "conv"
	CmdDirect  CommandType = "direct"
	CmdLobby   CommandType = "lobby"
	CmdError   CommandType = "error"
	CmdEcho    CommandType = "echo"
	CmdConn    CommandType = "conn"
)

// OpType refines a CommandType.
type OpType string

const (
	OpOpen   OpType = "open"
	OpOpened OpType = "opened"

	// room commands
	OpStart                 OpType = "start"
	OpStarted               OpType = "started"
	OpAdd                   OpType = "add"
	OpAdded                 OpType = "added"
	OpRemove                OpType = "remove"
	OpRemoved               OpType = "removed"
	OpUpdate                OpType = "update"
	OpUpdated               OpType = "updated"
	OpUpdateSystemProperty  OpType = "update-system-property"
	OpSystemPropertyUpdated OpType = "system-property-updated"
	OpUpdateMasterClient    OpType = "update-master-client"
	OpMasterClientUpdated   OpType = "master-client-updated"
	OpKick                  OpType = "kick"
	OpKicked                OpType = "kicked"

	// room notifications
	OpMembersJoined               OpType = "members-joined"
	OpMembersLeft                 OpType = "members-left"
	OpMasterClientChanged         OpType = "master-client-changed"
	OpSystemPropertyUpdatedNotify OpType = "system-property-updated-notify"
	OpUpdatedNotify               OpType = "updated-notify"
	OpPlayerProps                 OpType = "player-props"
	OpMembersOffline              OpType = "members-offline"
	OpMembersOnline               OpType = "members-online"
	OpKickedNotice                OpType = "kicked-notice"

	// lobby notifications
	OpRoomList OpType = "room-list"

	OpClose  OpType = "close"
	OpClosed OpType = "closed"
)

// Command is the envelope of every websocket text frame.
type Command struct {
	Cmd  CommandType `json:"cmd"`
	Op   OpType      `json:"op,omitempty"`
	Body *Body       `json:"body,omitempty"`
}

// Body carries exactly one of its fields.
type Body struct {
	Request          *Request          `json:"request,omitempty"`
	Response         *Response         `json:"response,omitempty"`
	RoomNotification *RoomNotification `json:"roomNotification,omitempty"`
	Direct           *DirectCommand    `json:"direct,omitempty"`
	RoomList         *RoomListCommand  `json:"roomList,omitempty"`
	Error            *ErrorCommand     `json:"error,omitempty"`
}

// Request is a client to server call correlated by I.
type Request struct {
	I                  int32                      `json:"i"`
	SessionOpen        *SessionOpenRequest        `json:"sessionOpen,omitempty"`
	CreateRoom         *CreateRoomRequest         `json:"createRoom,omitempty"`
	JoinRoom           *JoinRoomRequest           `json:"joinRoom,omitempty"`
	UpdateProperty     *UpdatePropertyRequest     `json:"updateProperty,omitempty"`
	UpdateSysProperty  *UpdateSysPropertyRequest  `json:"updateSysProperty,omitempty"`
	UpdateMasterClient *UpdateMasterClientRequest `json:"updateMasterClient,omitempty"`
	KickMember         *KickMemberRequest         `json:"kickMember,omitempty"`
}

// Response answers the Request with the same I.
type Response struct {
	I                  int32                       `json:"i"`
	ErrorInfo          *ErrorInfo                  `json:"errorInfo,omitempty"`
	CreateRoom         *CreateRoomResponse         `json:"createRoom,omitempty"`
	JoinRoom           *JoinRoomResponse           `json:"joinRoom,omitempty"`
	UpdateProperty     *UpdatePropertyResponse     `json:"updateProperty,omitempty"`
	UpdateSysProperty  *UpdateSysPropertyResponse  `json:"updateSysProperty,omitempty"`
	UpdateMasterClient *UpdateMasterClientResponse `json:"updateMasterClient,omitempty"`
	KickMember         *KickMemberResponse         `json:"kickMember,omitempty"`
}

type ErrorInfo struct {
	ReasonCode int32  `json:"reasonCode"`
	Detail     string `json:"detail,omitempty"`
}

type SessionOpenRequest struct {
	AppID           string `json:"appId"`
	PeerID          string `json:"peerId"`
	GameVersion     string `json:"gameVersion"`
	SessionToken    string `json:"sessionToken"`
	ProtocolVersion string `json:"protocolVersion"`
	SDKVersion      string `json:"sdkVersion"`
}

// RoomOptions is the room snapshot exchanged on create and join, and listed in lobbies.
type RoomOptions struct {
	Cid           string       `json:"cid,omitempty"`
	Open          *bool        `json:"open,omitempty"`
	Visible       *bool        `json:"visible,omitempty"`
	EmptyRoomTTL  int32        `json:"emptyRoomTtl,omitempty"`
	PlayerTTL     int32        `json:"playerTtl,omitempty"`
	MaxMembers    int32        `json:"maxMembers,omitempty"`
	MemberCount   int32        `json:"memberCount,omitempty"`
	MasterActorID int32        `json:"masterActorId,omitempty"`
	ExpectMembers []string     `json:"expectMembers,omitempty"`
	Attr          []byte       `json:"attr,omitempty"`
	LobbyAttrKeys []string     `json:"lobbyAttrKeys,omitempty"`
	Flag          int32        `json:"flag,omitempty"`
	PluginName    string       `json:"pluginName,omitempty"`
	Members       []RoomMember `json:"members,omitempty"`
}

type RoomMember struct {
	Pid      string `json:"pid"`
	ActorID  int32  `json:"actorId"`
	Inactive bool   `json:"inactive,omitempty"`
	Attr     []byte `json:"attr,omitempty"`
}

// RoomSystemProperty holds the system fields of a room that are present in an update.
// ExpectMembers is a member op (see MembersOp) in requests and a JSON array otherwise.
type RoomSystemProperty struct {
	Open          *bool  `json:"open,omitempty"`
	Visible       *bool  `json:"visible,omitempty"`
	MaxMembers    int32  `json:"maxMembers,omitempty"`
	ExpectMembers string `json:"expectMembers,omitempty"`
}

type AppInfo struct {
	AppCode int32  `json:"appCode"`
	AppMsg  string `json:"appMsg,omitempty"`
}

type CreateRoomRequest struct {
	RoomOptions *RoomOptions `json:"roomOptions"`
}

type CreateRoomResponse struct {
	RoomOptions *RoomOptions `json:"roomOptions"`
}

type JoinRoomRequest struct {
	Rejoin      bool         `json:"rejoin,omitempty"`
	RoomOptions *RoomOptions `json:"roomOptions"`
}

type JoinRoomResponse struct {
	RoomOptions *RoomOptions `json:"roomOptions"`
}

// UpdatePropertyRequest targets the room when TargetActorID is zero.
type UpdatePropertyRequest struct {
	TargetActorID int32  `json:"targetActorId,omitempty"`
	Attr          []byte `json:"attr"`
	ExpectAttr    []byte `json:"expectAttr,omitempty"`
}

// UpdatePropertyResponse carries only the properties the server applied.
type UpdatePropertyResponse struct {
	ActorID int32  `json:"actorId,omitempty"`
	Attr    []byte `json:"attr,omitempty"`
}

type UpdateSysPropertyRequest struct {
	SysAttr *RoomSystemProperty `json:"sysAttr"`
}

type UpdateSysPropertyResponse struct {
	SysAttr *RoomSystemProperty `json:"sysAttr"`
}

type UpdateMasterClientRequest struct {
	MasterActorID int32 `json:"masterActorId"`
}

type UpdateMasterClientResponse struct {
	MasterActorID int32 `json:"masterActorId"`
}

type KickMemberRequest struct {
	TargetActorID int32    `json:"targetActorId"`
	AppInfo       *AppInfo `json:"appInfo,omitempty"`
}

type KickMemberResponse struct {
	TargetActorID int32 `json:"targetActorId"`
}

// RoomNotification is pushed by the server to room members.
type RoomNotification struct {
	JoinRoom           *JoinRoomNotification           `json:"joinRoom,omitempty"`
	LeftRoom           *LeftRoomNotification           `json:"leftRoom,omitempty"`
	UpdateMasterClient *UpdateMasterClientNotification `json:"updateMasterClient,omitempty"`
	UpdateSysProperty  *UpdateSysPropertyNotification  `json:"updateSysProperty,omitempty"`
	UpdateProperty     *UpdatePropertyNotification     `json:"updateProperty,omitempty"`
	InitByActor        int32                           `json:"initByActor,omitempty"`
	AppInfo            *AppInfo                        `json:"appInfo,omitempty"`
}

type JoinRoomNotification struct {
	Member *RoomMember `json:"member"`
}

type LeftRoomNotification struct {
	ActorID int32 `json:"actorId"`
}

type UpdateMasterClientNotification struct {
	MasterActorID int32 `json:"masterActorId"`
}

type UpdateSysPropertyNotification struct {
	SysAttr *RoomSystemProperty `json:"sysAttr"`
}

type UpdatePropertyNotification struct {
	ActorID int32  `json:"actorId,omitempty"`
	Attr    []byte `json:"attr,omitempty"`
}

// ReceiverGroup selects the recipients of a direct event.
type ReceiverGroup int32

const (
	ReceiverOthers       ReceiverGroup = 0
	ReceiverAll          ReceiverGroup = 1
	ReceiverMasterClient ReceiverGroup = 2
)

// DirectCommand is a custom event. ToActorIDs overrides ReceiverGroup when set.
type DirectCommand struct {
	EventID       int32         `json:"eventId"`
	Msg           []byte        `json:"msg,omitempty"`
	ReceiverGroup ReceiverGroup `json:"receiverGroup"`
	ToActorIDs    []int32       `json:"toActorIds,omitempty"`
	FromActorID   int32         `json:"fromActorId,omitempty"`
}

type RoomListCommand struct {
	List []*RoomOptions `json:"list"`
}

type ErrorCommand struct {
	ErrorInfo *ErrorInfo `json:"errorInfo"`
}

// Member list operations carried in RoomSystemProperty.ExpectMembers
const (
	MembersSet    = "$set"
	MembersDrop   = "$drop"
	MembersAdd    = "$add"
	MembersRemove = "$remove"
)

// MembersOp is an edit of a room's expected member list.
type MembersOp struct {
	Op  string
	IDs []string
}

// Encode renders the op as the JSON object the server expects, e.g. {"$add":["a"]}.
func (m MembersOp) Encode() (string, error) {
	var v any = m.IDs
	if m.Op == MembersDrop {
		v = true
	} else if m.IDs == nil {
		v = []string{}
	}
	b, err := json.Marshal(map[string]any{m.Op: v})
	if err != nil {
		return "", fmt.Errorf("encode members op: %w", err)
	}
	return string(b), nil
}

// ParseMembersOp reads an op produced by Encode.
func ParseMembersOp(s string) (MembersOp, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return MembersOp{}, fmt.Errorf("parse members op: %w", err)
	}
	if len(raw) != 1 {
		return MembersOp{}, fmt.Errorf("parse members op: expected one operation, got %d", len(raw))
	}
	for op, val := range raw {
		switch op {
		case MembersDrop:
			return MembersOp{Op: op}, nil
		case MembersSet, MembersAdd, MembersRemove:
			var ids []string
			if err := json.Unmarshal(val, &ids); err != nil {
				return MembersOp{}, fmt.Errorf("parse members op %s: %w", op, err)
			}
			return MembersOp{Op: op, IDs: ids}, nil
		default:
			return MembersOp{}, fmt.Errorf("parse members op: unknown operation %q", op)
		}
	}
	return MembersOp{}, nil
}

// EncodeMembers renders a member list as carried in responses and notifications.
func EncodeMembers(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

// ParseMembers reads a member list written by EncodeMembers.
func ParseMembers(s string) ([]string, error) {
	ids := []string{}
	if s == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("parse members: %w", err)
	}
	return ids, nil
}
