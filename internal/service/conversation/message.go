package conversation

import (
	"time"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable turn in the session transcript. It is never persisted.
type Message struct {
	ID        string       `json:"id" yaml:"id"`
	Role      Role         `json:"role" yaml:"role"`
	Text      string       `json:"text" yaml:"text"`
	Emotion   *emotion.Tag `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	CreatedAt time.Time    `json:"createdAt" yaml:"createdAt"`
}

// State is the orchestrator position for the current turn.
type State string

const (
	StateIdle         State = "idle"
	StateCrisisCheck  State = "crisis_check"
	StateAnalyzing    State = "analyzing"
	StateReplying     State = "replying"
	StateCrisisLocked State = "crisis_locked"
)

// Result is what one Chat call hands back to the presentation layer.
type Result struct {
	Crisis    bool             `json:"crisis" yaml:"crisis"`
	Reply     *string          `json:"reply" yaml:"reply"`
	Emotion   *emotion.Reading `json:"emotion" yaml:"emotion"`
	Fallback  bool             `json:"fallback" yaml:"fallback"`
	MessageID string           `json:"messageId,omitempty" yaml:"messageId,omitempty"`
}
