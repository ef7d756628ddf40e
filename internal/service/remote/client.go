// Package remote is the boundary to the external emotion/chat model. Every
// operation may fail; callers choose their own fallback.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
)

// ErrUnconfigured is returned by every operation when no backend is set up.
var ErrUnconfigured = errors.New("remote api not configured")

// Client is implemented by each remote backend.
type Client interface {
	AnalyzeEmotion(ctx context.Context, text string) (emotion.Reading, error)
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
	SendFeedback(ctx context.Context, fb Feedback) error
	Insights(ctx context.Context) (Insights, error)
	// Configured reports whether the client can reach any backend.
	Configured() bool
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Text    string          `json:"text"`
	Emotion emotion.Reading `json:"emotion"`
}

// ChatReply carries the assistant text.
type ChatReply struct {
	Reply string `json:"reply"`
}

// Feedback rates one assistant message.
type Feedback struct {
	MessageID string      `json:"messageId"`
	Helpful   bool        `json:"helpful"`
	Emotion   emotion.Tag `json:"emotion,omitempty"`
}

// Insights is the aggregate payload returned by the remote analytics endpoint.
// Its shape belongs to the server, so it is passed through untouched.
type Insights struct {
	Data json.RawMessage
}

// Kind classifies remote failures.
type Kind string

const (
	KindUnconfigured Kind = "unconfigured"
	KindTransport    Kind = "transport"
	KindStatus       Kind = "status"
	KindDecode       Kind = "decode"
	KindTimeout      Kind = "timeout"
)

// Error describes a failed remote operation.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" when err is not a remote error.
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return ""
}

func unconfigured(op string) error {
	return &Error{Op: op, Kind: KindUnconfigured, Err: ErrUnconfigured}
}
