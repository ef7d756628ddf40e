// Package mood owns the consent flags and the rolling mood history of one
// profile, persisted key by key through a kv.Store.
package mood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

// HistoryLimit is the number of mood entries retained.
const HistoryLimit = 200

// Entry is one persisted mood reading.
type Entry struct {
	Timestamp int64       `json:"timestamp" yaml:"timestamp"` // epoch milliseconds
	Label     emotion.Tag `json:"label" yaml:"label"`
	Score     float64     `json:"score" yaml:"score"`
}

// Reading returns the emotion reading stored in e.
func (e Entry) Reading() emotion.Reading {
	return emotion.Reading{Label: e.Label, Score: e.Score}
}

// Snapshot is a copy of the manager state.
type Snapshot struct {
	Consented bool    `json:"consented" yaml:"consented"`
	Asked     bool    `json:"asked" yaml:"asked"`
	Listening bool    `json:"listening" yaml:"listening"`
	History   []Entry `json:"history" yaml:"history"`
}

// Manager is single-owner state for one profile. Its methods are safe to call
// concurrently, but history appends from parallel Analyze calls are not ordered.
type Manager struct {
	store  kv.Store
	remote remote.Client
	keys   Keys
	now    func() time.Time
	logger *zap.Logger

	mu        sync.RWMutex
	consented bool
	asked     bool
	history   []Entry

	inflight atomic.Int32
	subsMu   sync.Mutex
	subs     map[int]chan bool
	nextSub  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace prefixes every persisted key, e.g. with a profile id.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.keys = NewKeys(ns) }
}

// WithRemote sets the remote analyzer. Defaults to remote.Disabled.
func WithRemote(c remote.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.remote = c
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// Load restores state from store. Unreadable or corrupt keys fall back to
// their defaults; Load itself never fails.
func Load(ctx context.Context, store kv.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		remote:  remote.Disabled{},
		keys:    NewKeys(""),
		now:     time.Now,
		logger:  zap.NewNop(),
		history: []Entry{},
		subs:    make(map[int]chan bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.consented = m.loadBool(ctx, m.keys.Consent)
	m.asked = m.loadBool(ctx, m.keys.Asked)
	m.history = m.loadHistory(ctx)

	m.logger.Debug("mood state restored",
		zap.String("namespace", m.keys.Namespace),
		zap.Bool("consented", m.consented),
		zap.Bool("asked", m.asked),
		zap.Int("history", len(m.history)))
	return m
}

func (m *Manager) loadBool(ctx context.Context, key string) bool {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("read persisted flag failed, using default", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok && raw == "true"
}

func (m *Manager) loadHistory(ctx context.Context) []Entry {
	raw, ok, err := m.store.Get(ctx, m.keys.History)
	if err != nil {
		m.logger.Warn("read mood history failed, starting empty", zap.Error(err))
		return []Entry{}
	}
	if !ok || raw == "" {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		m.logger.Warn("mood history is corrupt, starting empty", zap.Error(err))
		return []Entry{}
	}
	return capHistory(entries)
}

// Grant records that the user opted in.
func (m *Manager) Grant(ctx context.Context) error {
	return m.setConsent(ctx, true, true)
}

// Decline records that the user was asked and said no.
func (m *Manager) Decline(ctx context.Context) error {
	return m.setConsent(ctx, false, true)
}

// Revoke withdraws consent. The asked flag is left as is.
func (m *Manager) Revoke(ctx context.Context) error {
	return m.setConsent(ctx, false, false)
}

func (m *Manager) setConsent(ctx context.Context, consented, markAsked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consented = consented
	err := m.persistBool(ctx, m.keys.Consent, consented)
	if markAsked {
		m.asked = true
		err = errors.Join(err, m.persistBool(ctx, m.keys.Asked, true))
	}
	if err != nil {
		m.logger.Error("persist consent failed", zap.Error(err))
		return fmt.Errorf("persist consent: %w", err)
	}
	return nil
}

func (m *Manager) persistBool(ctx context.Context, key string, value bool) error {
	raw := "false"
	if value {
		raw = "true"
	}
	return m.store.Set(ctx, key, raw)
}

// Consented reports whether emotion sensing is currently permitted.
func (m *Manager) Consented() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consented
}

// Asked reports whether the user has ever been prompted.
func (m *Manager) Asked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.asked
}

// Analyze reads the emotion of text. Without consent it returns a neutral
// zero reading and touches nothing. With consent it prefers the remote model,
// falls back to the heuristic classifier and appends the result to history.
// It never fails.
func (m *Manager) Analyze(ctx context.Context, text string) emotion.Reading {
	if !m.Consented() {
		return emotion.Disabled()
	}

	m.beginListening()
	defer m.endListening()

	reading, err := m.remote.AnalyzeEmotion(ctx, text)
	if err != nil {
		if remote.KindOf(err) != remote.KindUnconfigured {
			m.logger.Warn("remote analyze failed, using heuristic",
				zap.String("kind", string(remote.KindOf(err))),
				zap.Error(err))
		}
		reading = emotion.Heuristic(text)
	}

	m.append(ctx, reading)
	return reading
}

func (m *Manager) append(ctx context.Context, reading emotion.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = capHistory(append(m.history, Entry{
		Timestamp: m.now().UnixMilli(),
		Label:     reading.Label,
		Score:     reading.Score,
	}))

	if err := m.persistHistory(ctx); err != nil {
		m.logger.Error("persist mood history failed", zap.Error(err))
	}
}

// ClearHistory erases the mood history. Consent flags are unchanged.
func (m *Manager) ClearHistory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = []Entry{}
	if err := m.persistHistory(ctx); err != nil {
		return fmt.Errorf("persist mood history: %w", err)
	}
	return nil
}

// caller holds m.mu.
func (m *Manager) persistHistory(ctx context.Context) error {
	payload, err := json.Marshal(m.history)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.keys.History, string(payload))
}

// History returns a copy of the mood history, oldest first.
func (m *Manager) History() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry{}, m.history...)
}

// State returns a copy of the full state.
func (m *Manager) State() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Consented: m.consented,
		Asked:     m.asked,
		Listening: m.inflight.Load() > 0,
		History:   append([]Entry{}, m.history...),
	}
}

func capHistory(entries []Entry) []Entry {
	if len(entries) <= HistoryLimit {
		return entries
	}
	return append([]Entry(nil), entries[len(entries)-HistoryLimit:]...)
}
