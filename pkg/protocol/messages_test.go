// ABOUTME: Tests for Play protocol message types
// ABOUTME: Verifies JSON shape of commands and expected member operations
package protocol

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestCommandMarshaling(t *testing.T) {
	open := true
	cmd := Command{
		Cmd: CmdConv,
		Op:  OpStart,
		Body: &Body{
			Request: &Request{
				I: 3,
				CreateRoom: &CreateRoomRequest{
					RoomOptions: &RoomOptions{
						Cid:        "room-1",
						Open:       &open,
						MaxMembers: 4,
						Attr:       []byte{0x01, 0x02},
					},
				},
			},
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, want := range []string{`"cmd":"conv"`, `"op":"start"`, `"i":3`, `"cid":"room-1"`, `"attr":"AQI="`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}

	var decoded Command
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	opts := decoded.Body.Request.CreateRoom.RoomOptions
	if opts.Cid != "room-1" || opts.MaxMembers != 4 || opts.Open == nil || !*opts.Open {
		t.Errorf("unexpected room options after decode: %+v", opts)
	}
	if !reflect.DeepEqual(opts.Attr, []byte{0x01, 0x02}) {
		t.Errorf("expected attr bytes to survive, got %v", opts.Attr)
	}
}

func TestMembersOpEncode(t *testing.T) {
	tests := []struct {
		name string
		op   MembersOp
		want string
	}{
		{"set", MembersOp{Op: MembersSet, IDs: []string{"a", "b"}}, `{"$set":["a","b"]}`},
		{"drop", MembersOp{Op: MembersDrop}, `{"$drop":true}`},
		{"add", MembersOp{Op: MembersAdd, IDs: []string{"c"}}, `{"$add":["c"]}`},
		{"remove nil", MembersOp{Op: MembersRemove}, `{"$remove":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op.Encode()
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}

			parsed, err := ParseMembersOp(got)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.Op != tt.op.Op {
				t.Errorf("expected op %s, got %s", tt.op.Op, parsed.Op)
			}
		})
	}
}

func TestParseMembersOpRejectsUnknown(t *testing.T) {
	if _, err := ParseMembersOp(`{"$merge":["a"]}`); err == nil {
		t.Error("expected error for unknown operation")
	}
	if _, err := ParseMembersOp(`not json`); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestMembersList(t *testing.T) {
	if got := EncodeMembers(nil); got != "[]" {
		t.Errorf("expected [], got %s", got)
	}

	ids, err := ParseMembers(`["x","y"]`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"x", "y"}) {
		t.Errorf("expected [x y], got %v", ids)
	}

	empty, err := ParseMembers("")
	if err != nil || len(empty) != 0 || empty == nil {
		t.Errorf("expected empty non-nil list, got %v %v", empty, err)
	}
}
