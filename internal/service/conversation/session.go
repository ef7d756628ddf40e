// Package conversation runs the per-message pipeline: crisis check, consent
// gated emotion analysis, remote reply with a local fallback.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/lumi/backend/internal/analysis/crisis"
	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/mood"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
)

var ErrMessageNotFound = errors.New("message not found")

const defaultFeedbackTimeout = 5 * time.Second

// Session is one conversation. A crisis lock lasts for the life of the
// session; only a new session clears it.
type Session struct {
	id     string
	mood   *mood.Manager
	remote remote.Client
	logger *zap.Logger
	now    func() time.Time

	limiter         *rate.Limiter
	feedbackTimeout time.Duration
	feedbackWG      sync.WaitGroup

	turnMu sync.Mutex

	mu         sync.RWMutex
	state      State
	transcript []Message
	closed     bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = logging.OrNop(l) }
}

// WithFeedbackLimiter throttles feedback; excess feedback is dropped.
// Sessions of one process normally share a limiter.
func WithFeedbackLimiter(l *rate.Limiter) Option {
	return func(s *Session) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithFeedbackTimeout bounds each feedback call.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.feedbackTimeout = d
		}
	}
}

// WithClock overrides message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession starts an idle session over the profile's mood manager.
func NewSession(id string, manager *mood.Manager, client remote.Client, opts ...Option) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if client == nil {
		client = remote.Disabled{}
	}
	s := &Session{
		id:              id,
		mood:            manager,
		remote:          client,
		logger:          zap.NewNop(),
		now:             time.Now,
		limiter:         rate.NewLimiter(rate.Limit(2), 5),
		feedbackTimeout: defaultFeedbackTimeout,
		state:           StateIdle,
		transcript:      make([]Message, 0, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", id))
	return s
}

func (s *Session) ID() string { return s.id }

// Mood returns the state manager the session analyses through.
func (s *Session) Mood() *mood.Manager { return s.mood }

// Chat processes one user message. Calls on the same session are serialised.
// It never fails: remote problems fall back to local replies.
func (s *Session) Chat(ctx context.Context, text string) Result {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.Locked() {
		return Result{Crisis: true}
	}

	s.setState(StateCrisisCheck)
	if keyword, hit := crisis.Match(text); hit {
		s.record(RoleUser, text, nil)
		s.setState(StateCrisisLocked)
		s.logger.Warn("crisis language detected, session locked", zap.String("keyword", keyword))
		return Result{Crisis: true}
	}

	s.setState(StateAnalyzing)
	reading := s.mood.Analyze(ctx, text)
	s.record(RoleUser, text, &reading.Label)

	s.setState(StateReplying)
	reply, fallback := s.reply(ctx, text, reading)
	assistant := s.record(RoleAssistant, reply, &reading.Label)

	s.setState(StateIdle)
	return Result{
		Reply:     &reply,
		Emotion:   &reading,
		Fallback:  fallback,
		MessageID: assistant.ID,
	}
}

func (s *Session) reply(ctx context.Context, text string, reading emotion.Reading) (string, bool) {
	resp, err := s.remote.Chat(ctx, remote.ChatRequest{Text: text, Emotion: reading})
	if err == nil {
		return resp.Reply, false
	}
	if remote.KindOf(err) != remote.KindUnconfigured {
		s.logger.Warn("remote chat failed, using local reply",
			zap.String("kind", string(remote.KindOf(err))),
			zap.Error(err))
	}
	return FallbackReply(reading.Label), true
}

// FallbackReply is the canned reply used when no remote reply is available.
func FallbackReply(tag emotion.Tag) string {
	return fmt.Sprintf("I hear you. It sounds %s. Want to talk more about it?", emotion.FriendlyName(tag))
}

func (s *Session) record(role Role, text string, tag *emotion.Tag) Message {
	var label *emotion.Tag
	if tag != nil {
		copied := *tag
		label = &copied
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Emotion:   label,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
	return msg
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCrisisLocked {
		return
	}
	s.state = state
}

// State returns the orchestrator state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Locked reports whether crisis language ended automated replies.
func (s *Session) Locked() bool {
	return s.State() == StateCrisisLocked
}

// Transcript returns a copy of the session messages.
func (s *Session) Transcript() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.transcript...)
}

func (s *Session) findMessage(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.transcript {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}
