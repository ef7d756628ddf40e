package insights

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/mood"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
)

// Source tells where a report came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Report is either the remote payload or a local summary.
type Report struct {
	Source  Source          `json:"source" yaml:"source"`
	Remote  json.RawMessage `json:"remote,omitempty" yaml:"-"`
	Summary *Summary        `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Profiles resolves the mood manager of a profile.
type Profiles interface {
	Profile(ctx context.Context, profileID string) (*mood.Manager, error)
}

// Service serves insights for a profile.
type Service struct {
	profiles Profiles
	remote   remote.Client
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the insight service. logger may be nil.
func NewService(profiles Profiles, client remote.Client, logger *zap.Logger) *Service {
	if client == nil {
		client = remote.Disabled{}
	}
	return &Service{
		profiles: profiles,
		remote:   client,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Get prefers the remote analytics endpoint and falls back to a summary of
// the profile's local history.
func (s *Service) Get(ctx context.Context, profileID string) (Report, error) {
	manager, err := s.profiles.Profile(ctx, profileID)
	if err != nil {
		return Report{}, err
	}

	data, err := s.remote.Insights(ctx)
	if err == nil && len(data.Data) > 0 {
		return Report{Source: SourceRemote, Remote: data.Data}, nil
	}
	if err != nil && remote.KindOf(err) != remote.KindUnconfigured {
		s.logger.Warn("remote insights failed, computing locally",
			zap.String("kind", string(remote.KindOf(err))),
			zap.Error(err))
	}

	summary := Compute(manager.History(), s.now())
	return Report{Source: SourceLocal, Summary: &summary}, nil
}
