// ABOUTME: In-memory room model of the development backend
// ABOUTME: Membership, master election, CAS property writes and expected member lists
package devserver

import (
	"fmt"
	"sort"
	"time"

	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

const (
	flagFixedMaster          = 1
	flagMasterUpdateRoomAttr = 2

	defaultMaxMembers = 10
)

type member struct {
	userID  string
	actorID int32
	attr    codec.RawObject
	active  bool
	sess    *session
	expiry  *time.Timer
}

func (m *member) proto() *protocol.RoomMember {
	return &protocol.RoomMember{
		Pid:      m.userID,
		ActorID:  m.actorID,
		Inactive: !m.active,
		Attr:     m.attr.Marshal(),
	}
}

type room struct {
	name       string
	open       bool
	visible    bool
	maxMembers int32
	emptyTTL   int32
	playerTTL  int32
	flag       int32
	pluginName string
	lobbyKeys  []string
	expected   []string
	attr       codec.RawObject
	master     int32
	nextActor  int32
	members    map[int32]*member
	expiry     *time.Timer
}

func newRoom(opts *protocol.RoomOptions) (*room, error) {
	attr, err := codec.UnmarshalRawObject(opts.Attr)
	if err != nil {
		return nil, fmt.Errorf("room properties: %w", err)
	}

	rm := &room{
		name:       opts.Cid,
		open:       opts.Open == nil || *opts.Open,
		visible:    opts.Visible == nil || *opts.Visible,
		maxMembers: opts.MaxMembers,
		emptyTTL:   opts.EmptyRoomTTL,
		playerTTL:  opts.PlayerTTL,
		flag:       opts.Flag,
		pluginName: opts.PluginName,
		lobbyKeys:  append([]string{}, opts.LobbyAttrKeys...),
		expected:   append([]string{}, opts.ExpectMembers...),
		attr:       attr,
		members:    make(map[int32]*member),
	}
	if rm.maxMembers <= 0 {
		rm.maxMembers = defaultMaxMembers
	}
	return rm, nil
}

func (rm *room) sortedMembers() []*member {
	list := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].actorID < list[j].actorID })
	return list
}

func (rm *room) memberByUser(userID string) *member {
	for _, m := range rm.members {
		if m.userID == userID {
			return m
		}
	}
	return nil
}

// admit reports the rejection code for a new member, or 0
func (rm *room) admit(userID string) int {
	if !rm.open {
		return protocol.CodeRoomClosed
	}
	if int32(len(rm.members)) >= rm.maxMembers {
		return protocol.CodeRoomFull
	}
	reserved := 0
	for _, id := range rm.expected {
		if id != userID && rm.memberByUser(id) == nil {
			reserved++
		}
	}
	if !contains(rm.expected, userID) && int32(len(rm.members)+reserved) >= rm.maxMembers {
		return protocol.CodeRoomFull
	}
	return 0
}

func (rm *room) addMember(sess *session) *member {
	rm.nextActor++
	m := &member{
		userID:  sess.userID,
		actorID: rm.nextActor,
		attr:    codec.RawObject{},
		active:  true,
		sess:    sess,
	}
	rm.members[m.actorID] = m
	rm.expected = remove(rm.expected, sess.userID)
	if rm.expiry != nil {
		rm.expiry.Stop()
		rm.expiry = nil
	}
	return m
}

// electMaster picks the lowest active actor, or none when the room keeps a fixed master
func (rm *room) electMaster() int32 {
	if rm.flag&flagFixedMaster != 0 {
		return 0
	}
	for _, m := range rm.sortedMembers() {
		if m.active {
			return m.actorID
		}
	}
	return 0
}

// applyProps is a compare-and-set write. It returns the properties that changed,
// which is empty when expect does not match the current values.
func applyProps(current, props, expect codec.RawObject) codec.RawObject {
	changed := codec.RawObject{}
	for k, want := range expect {
		have, ok := current[k]
		if !ok || !have.Equal(want) {
			return changed
		}
	}
	for k, v := range props {
		if have, ok := current[k]; ok && have.Equal(v) {
			continue
		}
		current[k] = v
		changed[k] = v
	}
	return changed
}

// applyMembers edits the expected member list
func (rm *room) applyMembers(op protocol.MembersOp) {
	switch op.Op {
	case protocol.MembersSet:
		rm.expected = append([]string{}, op.IDs...)
	case protocol.MembersDrop:
		rm.expected = nil
	case protocol.MembersAdd:
		for _, id := range op.IDs {
			if !contains(rm.expected, id) {
				rm.expected = append(rm.expected, id)
			}
		}
	case protocol.MembersRemove:
		for _, id := range op.IDs {
			rm.expected = remove(rm.expected, id)
		}
	}
}

func (rm *room) options() *protocol.RoomOptions {
	open, visible := rm.open, rm.visible
	opts := &protocol.RoomOptions{
		Cid:           rm.name,
		Open:          &open,
		Visible:       &visible,
		EmptyRoomTTL:  rm.emptyTTL,
		PlayerTTL:     rm.playerTTL,
		MaxMembers:    rm.maxMembers,
		MemberCount:   int32(len(rm.members)),
		MasterActorID: rm.master,
		ExpectMembers: append([]string{}, rm.expected...),
		Attr:          rm.attr.Marshal(),
		LobbyAttrKeys: rm.lobbyKeys,
		Flag:          rm.flag,
		PluginName:    rm.pluginName,
	}
	for _, m := range rm.sortedMembers() {
		opts.Members = append(opts.Members, *m.proto())
	}
	return opts
}

// listing is the lobby view: no members and only lobby-visible properties
func (rm *room) listing() *protocol.RoomOptions {
	open, visible := rm.open, rm.visible
	attr := codec.RawObject{}
	for _, k := range rm.lobbyKeys {
		if v, ok := rm.attr[k]; ok {
			attr[k] = v
		}
	}
	return &protocol.RoomOptions{
		Cid:           rm.name,
		Open:          &open,
		Visible:       &visible,
		EmptyRoomTTL:  rm.emptyTTL,
		PlayerTTL:     rm.playerTTL,
		MaxMembers:    rm.maxMembers,
		MemberCount:   int32(len(rm.members)),
		ExpectMembers: append([]string{}, rm.expected...),
		Attr:          attr.Marshal(),
	}
}

// matches compares lobby-visible properties with JSON decoded match criteria
func (rm *room) matches(criteria map[string]any) bool {
	for k, want := range criteria {
		if !contains(rm.lobbyKeys, k) {
			return false
		}
		raw, ok := rm.attr[k]
		if !ok {
			return false
		}
		have, err := codec.Deserialize(raw)
		if err != nil || !sameValue(have, want) {
			return false
		}
	}
	return true
}

func sameValue(have, want any) bool {
	if h, ok := toFloat(have); ok {
		w, ok := toFloat(want)
		return ok && h == w
	}
	switch h := have.(type) {
	case string:
		w, ok := want.(string)
		return ok && h == w
	case bool:
		w, ok := want.(bool)
		return ok && h == w
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case byte:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
