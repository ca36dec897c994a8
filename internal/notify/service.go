package notify

import (
	"context"

	"github.com/gmsas95/medwatch/internal/errors"
	"github.com/gmsas95/medwatch/internal/push"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Caller identifies the authenticated user behind an on-demand request.
type Caller struct {
	UID string
}

// Request is the on-demand send payload.
type Request struct {
	Tokens           []string          `json:"tokens" validate:"omitempty,dive,required"`
	Title            string            `json:"title" validate:"max=256"`
	Body             string            `json:"body" validate:"max=4096"`
	NotificationData map[string]string `json:"notificationData"`
}

// Result is returned to the caller.
type Result struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
}

// Service performs caller-initiated caregiver notifications. Unlike the
// scheduled detector, every failure is returned to the caller.
type Service struct {
	dispatcher *Dispatcher
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewService creates the on-demand notification service
func NewService(dispatcher *Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
}

// SendCaregiverNotification sends title/body/data to the given tokens.
func (s *Service) SendCaregiverNotification(ctx context.Context, caller *Caller, req Request) (*Result, error) {
	if caller == nil || caller.UID == "" {
		return nil, errors.ErrUnauthenticated
	}

	if len(req.Tokens) == 0 {
		s.logger.Info("No tokens provided", zap.String("caller", caller.UID))
		return &Result{Success: true, Sent: 0}, nil
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "invalid notification request")
	}

	data := req.NotificationData
	if data == nil {
		data = map[string]string{}
	}

	counts, err := s.dispatcher.Dispatch(ctx, SourceOnDemand, &push.Message{
		Tokens: req.Tokens,
		Title:  req.Title,
		Body:   req.Body,
		Data:   data,
	})
	if err != nil {
		s.logger.Error("Error sending notification", zap.String("caller", caller.UID), zap.Error(err))
		return nil, errors.Internal(err)
	}

	s.logger.Info("On-demand notification sent",
		zap.String("caller", caller.UID),
		zap.Int("sent", counts.Sent),
		zap.Int("failed", counts.Failed),
	)

	return &Result{Success: true, Sent: counts.Sent, Failed: counts.Failed}, nil
}
