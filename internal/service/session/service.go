package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/conversation"
	"github.com/zhouzirui/lumi/backend/internal/service/mood"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Info describes a live session.
type Info struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profileId"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	info Info
	conv *conversation.Session
}

// DefaultIdleProfiles is how many mood managers without a live session stay
// cached.
const DefaultIdleProfiles = 64

type profile struct {
	manager  *mood.Manager
	sessions int
	lastUsed uint64
}

// Service keeps live conversations in memory. Mood state is per profile and
// shared by all of that profile's sessions. A manager stays cached while any
// session uses it; idle managers are evicted least recently used first and
// reloaded from the store on the next request.
type Service struct {
	store     kv.Store
	remote    remote.Client
	logger    *zap.Logger
	limiter   *rate.Limiter
	feedback  time.Duration
	idleLimit int

	mu       sync.RWMutex
	sessions map[string]entry
	profiles map[string]*profile
	tick     uint64
}

// Option configures the Service.
type Option func(*Service)

// WithLogger attaches a logger shared with sessions and managers.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithFeedbackRate throttles feedback across every session.
func WithFeedbackRate(perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithFeedbackTimeout bounds each background feedback call.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(s *Service) { s.feedback = d }
}

// WithIdleProfiles bounds the idle mood managers kept in memory.
func WithIdleProfiles(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.idleLimit = n
		}
	}
}

// NewService builds the registry over a key-value store and a remote client.
func NewService(store kv.Store, client remote.Client, opts ...Option) *Service {
	if client == nil {
		client = remote.Disabled{}
	}
	s := &Service{
		store:     store,
		remote:    client,
		logger:    zap.NewNop(),
		limiter:   rate.NewLimiter(rate.Limit(2), 5),
		idleLimit: DefaultIdleProfiles,
		sessions:  make(map[string]entry),
		profiles:  make(map[string]*profile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remote exposes the client the sessions talk to.
func (s *Service) Remote() remote.Client { return s.remote }

// Profile returns the mood manager for profileID, restoring it from the
// store on first use.
func (s *Service) Profile(ctx context.Context, profileID string) (*mood.Manager, error) {
	if profileID == "" {
		return nil, ErrProfileRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.acquireLocked(ctx, profileID)
	s.evictIdleLocked()
	return p.manager, nil
}

// caller holds s.mu.
func (s *Service) acquireLocked(ctx context.Context, profileID string) *profile {
	s.tick++
	p, ok := s.profiles[profileID]
	if !ok {
		p = &profile{manager: mood.Load(ctx, s.store,
			mood.WithNamespace(profileID),
			mood.WithRemote(s.remote),
			mood.WithLogger(s.logger.With(zap.String("profile_id", profileID))))}
		s.profiles[profileID] = p
	}
	p.lastUsed = s.tick
	return p
}

// caller holds s.mu.
func (s *Service) evictIdleLocked() {
	for {
		idle := 0
		var oldestID string
		var oldest *profile
		for id, p := range s.profiles {
			if p.sessions > 0 {
				continue
			}
			idle++
			if oldest == nil || p.lastUsed < oldest.lastUsed {
				oldestID, oldest = id, p
			}
		}
		if idle <= s.idleLimit {
			return
		}
		delete(s.profiles, oldestID)
		s.logger.Debug("mood manager evicted", zap.String("profile_id", oldestID))
	}
}

// Create starts a new conversation for profileID.
func (s *Service) Create(ctx context.Context, profileID string) (Info, error) {
	if profileID == "" {
		return Info{}, ErrProfileRequired
	}

	s.mu.Lock()
	p := s.acquireLocked(ctx, profileID)
	p.sessions++
	s.mu.Unlock()
	manager := p.manager

	info := Info{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		CreatedAt: time.Now().UTC(),
	}
	conv := conversation.NewSession(info.ID, manager, s.remote,
		conversation.WithLogger(s.logger),
		conversation.WithFeedbackLimiter(s.limiter),
		conversation.WithFeedbackTimeout(s.feedback))

	s.mu.Lock()
	s.sessions[info.ID] = entry{info: info, conv: conv}
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", info.ID), zap.String("profile_id", profileID))
	return info, nil
}

// Get returns the conversation for sessionID.
func (s *Service) Get(_ context.Context, sessionID string) (*conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.conv, nil
}

// Info returns metadata for sessionID.
func (s *Service) Info(_ context.Context, sessionID string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return e.info, nil
}

// End removes the session and waits for its pending feedback.
func (s *Service) End(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		s.releaseLocked(e.info.ProfileID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.conv.Close()
	return nil
}

// caller holds s.mu.
func (s *Service) releaseLocked(profileID string) {
	if p, ok := s.profiles[profileID]; ok && p.sessions > 0 {
		p.sessions--
	}
	s.evictIdleLocked()
}

// Close ends every live session.
func (s *Service) Close() {
	s.mu.Lock()
	live := s.sessions
	s.sessions = make(map[string]entry)
	for _, e := range live {
		s.releaseLocked(e.info.ProfileID)
	}
	s.mu.Unlock()

	for _, e := range live {
		e.conv.Close()
	}
}
