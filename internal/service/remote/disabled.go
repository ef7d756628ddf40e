package remote

import (
	"context"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
)

// Disabled is the client used when no remote backend is configured.
type Disabled struct{}

func (Disabled) AnalyzeEmotion(context.Context, string) (emotion.Reading, error) {
	return emotion.Reading{}, unconfigured("analyze")
}

func (Disabled) Chat(context.Context, ChatRequest) (ChatReply, error) {
	return ChatReply{}, unconfigured("chat")
}

func (Disabled) SendFeedback(context.Context, Feedback) error {
	return unconfigured("feedback")
}

func (Disabled) Insights(context.Context) (Insights, error) {
	return Insights{}, unconfigured("insights")
}

func (Disabled) Configured() bool { return false }
