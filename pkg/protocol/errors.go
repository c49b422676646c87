// ABOUTME: Errors surfaced by the Play connection and directory layers
// ABOUTME: Connection failures are sentinels, server rejections carry a numeric code
package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("protocol: not connected")
	ErrConnectionClosed  = errors.New("protocol: connection closed")
	ErrUnexpectedMessage = errors.New("protocol: unexpected message")
)

// Reason codes returned by Play servers.
const (
	CodeInvalidRequest  = 4100
	CodeVersionMismatch = 4104
	CodeNotMaster       = 4201
	CodeRoomNotFound    = 4301
	CodeRoomFull        = 4302
	CodeRoomClosed      = 4303
	CodeActorNotFound   = 4304
	CodeAlreadyInRoom   = 4305
	CodeUnauthorized    = 4401
)

// Error is a coded rejection from the server.
type Error struct {
	Code   int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("play error %d: %s", e.Code, e.Detail)
}

// IsCode reports whether err is a server rejection with the given code.
func IsCode(err error, code int) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}
