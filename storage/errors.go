// Package storage holds the two persistence tiers for the board document: local
// caches that survive restarts and remote documents shared between clients.
package storage

import (
	"errors"
	"fmt"

	"prism-board/domain"
)

// ErrRemoteNotConfigured is returned by OpenRemote when no remote backend is set.
// Callers treat it as offline mode, not as a failure.
var ErrRemoteNotConfigured = errors.New("remote persistence not configured")

// RemoteError wraps a network or write failure against a remote backend.
type RemoteError struct {
	Op      string
	Backend string
	Err     error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Backend: backend, Err: err}
}

// Snapshot is one delivery from a remote subscription. A nil Board with a nil
// Err means the remote holds no document for this board.
type Snapshot struct {
	Board *domain.Board
	Err   error
}

// decodeSnapshot turns a stored document into a snapshot; an empty payload is
// the "no document" case.
func decodeSnapshot(data []byte) Snapshot {
	if len(data) == 0 {
		return Snapshot{}
	}
	b, _, err := domain.UnmarshalDocument(data)
	if err != nil {
		return Snapshot{Err: err}
	}
	return Snapshot{Board: b}
}

func encode(b *domain.Board) ([]byte, error) {
	data, err := domain.MarshalDocument(b)
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}
	return data, nil
}
