package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/service/remote"
)

// Feedback rates an assistant message. Delivery happens in the background and
// its outcome is discarded; only an unknown message id is reported.
func (s *Session) Feedback(messageID string, helpful bool) error {
	msg, ok := s.findMessage(messageID)
	if !ok || msg.Role != RoleAssistant {
		return ErrMessageNotFound
	}

	if !s.limiter.Allow() {
		s.logger.Debug("feedback dropped by rate limit", zap.String("message_id", messageID))
		return nil
	}

	fb := remote.Feedback{MessageID: messageID, Helpful: helpful}
	if msg.Emotion != nil {
		fb.Emotion = *msg.Emotion
	}

	// Add under the read lock so Close cannot start waiting in between.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.feedbackWG.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.feedbackWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.feedbackTimeout)
		defer cancel()

		if err := s.remote.SendFeedback(ctx, fb); err != nil {
			s.logger.Debug("feedback not delivered", zap.Error(err))
		}
	}()
	return nil
}

// Close waits for in-flight feedback. Later feedback is ignored.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feedbackWG.Wait()
}
