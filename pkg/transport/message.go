// Package transport streams archive bytes from the exporting page to the
// background context that answers the interception route.
//
// The page posts CreateFile, WriteFile and CloseFile messages, each tagged
// with a fresh operation id; the background context performs the action and
// broadcasts the bare operation id as the acknowledgement.
package transport

import (
	"context"
	"fmt"
)

// Action names the operation a Message requests.
type Action string

const (
	ActionCreateFile Action = "CreateFile"
	ActionWriteFile  Action = "WriteFile"
	ActionCloseFile  Action = "CloseFile"
	// ActionAbortFile ends a stream whose archive will never be completed.
	ActionAbortFile Action = "AbortFile"
)

// Message is posted from the page to the background context.
type Message struct {
	Action      Action `json:"action"`
	ID          string `json:"id"`
	OperationID string `json:"operationId"`
	Name        string `json:"name,omitempty"`
	Chunk       []byte `json:"chunk,omitempty"`
}

// Validate checks the fields the action needs.
func (m Message) Validate() error {
	if m.ID == "" || m.OperationID == "" {
		return fmt.Errorf("%s: id and operationId are required", m.Action)
	}
	switch m.Action {
	case ActionCreateFile, ActionCloseFile, ActionAbortFile:
		return nil
	case ActionWriteFile:
		if len(m.Chunk) == 0 {
			return fmt.Errorf("%s: empty chunk", m.Action)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
}

// Poster delivers messages to the background context.
type Poster interface {
	Post(ctx context.Context, msg Message) error
}

// AckSource yields acknowledgement tokens as they are broadcast.
// The channel is closed when ctx is done or the source goes away.
type AckSource interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// AckPublisher broadcasts acknowledgement tokens.
type AckPublisher interface {
	Publish(ctx context.Context, token string) error
}

// AckBus is a broadcast channel carrying acknowledgement tokens.
type AckBus interface {
	AckSource
	AckPublisher
}
