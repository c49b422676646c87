// ABOUTME: Error taxonomy of the Play client
// ABOUTME: State errors are typed, server rejections reuse protocol.Error
package play

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/play-go/pkg/protocol"
)

var (
	// ErrConfiguration wraps invalid client configuration
	ErrConfiguration = errors.New("play: invalid configuration")
	// ErrState matches every *StateError
	ErrState = errors.New("play: operation not allowed in current state")
	// ErrPlayerNotFound is returned when an actor id is not in the room
	ErrPlayerNotFound = errors.New("play: player not found")
)

// RemoteError is a coded rejection from a Play server, e.g. room full or not found.
type RemoteError = protocol.Error

// StateError reports an operation attempted outside the state it requires.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("play: %s not allowed: %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrState
}
