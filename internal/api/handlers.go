package api

import (
	stderrors "errors"
	"time"

	"github.com/gmsas95/medwatch/internal/errors"
	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/gmsas95/medwatch/internal/schedule"
	"github.com/gmsas95/medwatch/internal/store"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.UserContext()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"version":   s.deps.Version,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleSendCaregiverNotification(c *fiber.Ctx) error {
	var req notify.Request
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid request body"))
	}

	result, err := s.deps.Notifier.SendCaregiverNotification(c.UserContext(), callerFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 500 {
		return writeError(c, errors.New(errors.CodeInvalidArgument, "limit must be between 1 and 500"))
	}

	runs, err := s.deps.Store.ListRuns(c.UserContext(), limit)
	if err != nil {
		return writeError(c, errors.Internal(err))
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func (s *Server) handleTriggerRun(c *fiber.Ctx) error {
	if s.deps.Runs == nil {
		return writeError(c, errors.ErrUnavailable)
	}

	summary := s.deps.Runs.RunOnce(c.UserContext())
	s.logger.Info("Detection run triggered",
		zap.String("caller", callerFrom(c).UID),
		zap.String("run_id", summary.RunID),
	)
	return c.JSON(summary.Record())
}

func (s *Server) handleListLogs(c *fiber.Ctx) error {
	date := c.Query("date", schedule.DateString(time.Now().In(s.config.Location())))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return writeError(c, errors.New(errors.CodeInvalidArgument, "date must be YYYY-MM-DD"))
	}

	groupID := c.Params("id")
	group, err := s.deps.Store.GetPatientGroup(c.UserContext(), groupID)
	if stderrors.Is(err, store.ErrNotFound) {
		return writeError(c, errors.ErrNotFound)
	}
	if err != nil {
		return writeError(c, errors.Internal(err))
	}
	// non-members get the same answer as a missing group
	if !isMember(group, callerFrom(c).UID) {
		return writeError(c, errors.ErrNotFound)
	}

	logs, err := s.deps.Store.ListMedicationLogs(c.UserContext(), groupID, date)
	if err != nil {
		return writeError(c, errors.Internal(err))
	}
	return c.JSON(fiber.Map{"logs": logs})
}

func isMember(group *store.PatientGroup, uid string) bool {
	if group.PatientUID == uid {
		return true
	}
	for _, id := range group.CaregiverIDs {
		if id == uid {
			return true
		}
	}
	return false
}

var httpStatus = map[string]struct {
	code   int
	status string
}{
	errors.CodeUnauthenticated: {fiber.StatusUnauthorized, "UNAUTHENTICATED"},
	errors.CodeInvalidArgument: {fiber.StatusBadRequest, "INVALID_ARGUMENT"},
	errors.CodeNotFound:        {fiber.StatusNotFound, "NOT_FOUND"},
	errors.CodeUnavailable:     {fiber.StatusServiceUnavailable, "UNAVAILABLE"},
	errors.CodeInternal:        {fiber.StatusInternalServerError, "INTERNAL"},
}

// writeError renders err as {"error": {"status", "message"}}. Errors that are
// not AppErrors are reported as internal.
func writeError(c *fiber.Ctx, err error) error {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Internal(err)
	}

	m, ok := httpStatus[appErr.Code]
	if !ok {
		m = httpStatus[errors.CodeInternal]
	}
	return c.Status(m.code).JSON(fiber.Map{
		"error": fiber.Map{
			"status":  m.status,
			"message": appErr.Message,
		},
	})
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if stderrors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fiber.Map{"status": "HTTP_ERROR", "message": fe.Message},
			})
		}
		logger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
		return writeError(c, err)
	}
}
