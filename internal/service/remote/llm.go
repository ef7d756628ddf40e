package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/logging"
)

// LLMClient serves analyze and chat from a chat model when no REST backend
// exists. It has no analytics endpoint.
type LLMClient struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
	responder  compose.Runnable[map[string]any, *schema.Message]
	timeout    time.Duration
	logger     *zap.Logger
}

// NewLLMClient compiles the classifier and responder chains over chatModel.
func NewLLMClient(ctx context.Context, chatModel model.ChatModel, timeout time.Duration, logger *zap.Logger) (*LLMClient, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	classifier, err := compileChain(ctx, chatModel,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage("{user_message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	responder, err := compileChain(ctx, chatModel,
		schema.SystemMessage(companionSystemPrompt),
		schema.UserMessage("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &LLMClient{
		classifier: classifier,
		responder:  responder,
		timeout:    timeout,
		logger:     logging.OrNop(logger),
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, templates ...schema.MessagesTemplate) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, templates...))
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

func (c *LLMClient) Configured() bool { return true }

// AnalyzeEmotion asks the model to label text.
func (c *LLMClient) AnalyzeEmotion(ctx context.Context, text string) (emotion.Reading, error) {
	const op = "analyze"
	content, err := c.invoke(ctx, op, c.classifier, map[string]any{
		"user_message": strings.TrimSpace(text),
	})
	if err != nil {
		return emotion.Reading{}, err
	}

	payload, err := parseClassifierOutput(content)
	if err != nil {
		return emotion.Reading{}, &Error{Op: op, Kind: KindDecode, Err: err}
	}
	label, ok := emotion.Parse(payload.Label)
	if !ok {
		return emotion.Reading{}, &Error{Op: op, Kind: KindDecode, Err: fmt.Errorf("unknown label %q", payload.Label)}
	}
	return emotion.Reading{Label: label, Score: emotion.ClampScore(payload.Score), Source: emotion.SourceRemote}, nil
}

// Chat generates a companion reply tuned to the detected emotion.
func (c *LLMClient) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	const op = "chat"
	content, err := c.invoke(ctx, op, c.responder, map[string]any{
		"tone":  emotion.FriendlyName(req.Emotion.Label),
		"label": string(req.Emotion.Label),
		"query": req.Text,
	})
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Reply: content}, nil
}

// SendFeedback has no model-side sink; it is only logged.
func (c *LLMClient) SendFeedback(_ context.Context, fb Feedback) error {
	c.logger.Info("feedback received",
		zap.String("message_id", fb.MessageID),
		zap.Bool("helpful", fb.Helpful),
		zap.String("emotion", string(fb.Emotion)))
	return nil
}

// Insights is not available from a chat model.
func (c *LLMClient) Insights(context.Context) (Insights, error) {
	return Insights{}, unconfigured("insights")
}

func (c *LLMClient) invoke(ctx context.Context, op string, chain compose.Runnable[map[string]any, *schema.Message], input map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := chain.Invoke(ctx, input)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return "", &Error{Op: op, Kind: kind, Err: err}
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", &Error{Op: op, Kind: KindDecode, Err: errors.New("empty model output")}
	}
	return strings.TrimSpace(msg.Content), nil
}

type classifierPayload struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// parseClassifierOutput extracts the first JSON object from model output.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Prompts are FString templates; literal braces must not appear in them.
const classifierSystemPrompt = "You classify the emotion of a single user message for a wellbeing companion app. " +
	"Reply with exactly one JSON object and nothing else. The object has two fields: " +
	"label, which must be one of neutral, joy, sadness, anger, fear, surprise, disgust; " +
	"and score, a number between 0 and 1 giving your confidence."

const companionSystemPrompt = "You are LUMI, a warm and gentle mood companion. " +
	"The user currently sounds {tone} (emotion label: {label}). " +
	"Reply in two or three short sentences. Acknowledge their feeling, stay supportive and curious, " +
	"and never give medical, legal or diagnostic advice. If they mention danger to themselves or others, " +
	"encourage them to contact local emergency services."
