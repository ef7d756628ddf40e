package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/logging"
)

const defaultTimeout = 10 * time.Second

// HTTPClient talks to the LUMI REST API.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// HTTPOption customises an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = logging.OrNop(l) }
}

// NewHTTPClient builds a client for baseURL. Each call is bounded by timeout
// (10s when zero).
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Configured() bool { return c.baseURL != "" }

type analyzeResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// AnalyzeEmotion calls POST /api/analyze.
func (c *HTTPClient) AnalyzeEmotion(ctx context.Context, text string) (emotion.Reading, error) {
	const op = "analyze"
	var resp analyzeResponse
	if err := c.do(ctx, op, http.MethodPost, "/api/analyze", map[string]string{"text": text}, &resp); err != nil {
		return emotion.Reading{}, err
	}

	label, ok := emotion.Parse(resp.Label)
	if !ok {
		return emotion.Reading{}, &Error{Op: op, Kind: KindDecode, Err: fmt.Errorf("unknown label %q", resp.Label)}
	}
	return emotion.Reading{Label: label, Score: emotion.ClampScore(resp.Score), Source: emotion.SourceRemote}, nil
}

// Chat calls POST /api/chat.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	const op = "chat"
	var reply ChatReply
	if err := c.do(ctx, op, http.MethodPost, "/api/chat", req, &reply); err != nil {
		return ChatReply{}, err
	}
	if strings.TrimSpace(reply.Reply) == "" {
		return ChatReply{}, &Error{Op: op, Kind: KindDecode, Err: errors.New("empty reply")}
	}
	return reply, nil
}

// SendFeedback calls POST /api/feedback. The response body is ignored.
func (c *HTTPClient) SendFeedback(ctx context.Context, fb Feedback) error {
	return c.do(ctx, "feedback", http.MethodPost, "/api/feedback", fb, nil)
}

// Insights calls GET /api/insights.
func (c *HTTPClient) Insights(ctx context.Context) (Insights, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "insights", http.MethodGet, "/api/insights", nil, &raw); err != nil {
		return Insights{}, err
	}
	return Insights{Data: raw}, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	if !c.Configured() {
		return unconfigured(op)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &Error{Op: op, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("remote call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Op:     op,
			Kind:   KindStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := KindDecode
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &Error{Op: op, Kind: kind, Err: err}
	}
	return nil
}
