package handler

import (
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/delivery/http/middleware"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/pkg/utils"
	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/usecase/dto"
)

// SubmitHandler accepts measurement report batches.
type SubmitHandler struct {
	submitUC *usecase.SubmitUseCase
	logger   *zap.Logger
}

func NewSubmitHandler(submitUC *usecase.SubmitUseCase, logger *zap.Logger) *SubmitHandler {
	return &SubmitHandler{submitUC: submitUC, logger: logger}
}

// Geosubmit handles POST /v1/geosubmit and /v2/geosubmit. Accepted
// batches answer immediately; processing happens asynchronously.
func (h *SubmitHandler) Geosubmit(c *fiber.Ctx) error {
	req, err := dto.ParseSubmitRequest(c.Body())
	if err != nil {
		return utils.SendParseError(c)
	}

	reports := req.ToReports(time.Now().UTC())
	if key := middleware.KeyFromContext(c); key != nil && key.StoreSampleSubmit < 100 {
		reports = sampleReports(reports, key.StoreSampleSubmit)
	}

	if err := h.submitUC.Queue(c.UserContext(), reports); err != nil {
		h.logger.Error("Submit enqueue failed", zap.Error(err))
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{})
}

// sampleReports keeps roughly pct percent of the batch.
func sampleReports(reports []domain.Report, pct int) []domain.Report {
	if pct <= 0 {
		return nil
	}
	kept := reports[:0]
	for i := range reports {
		if rand.Intn(100) < pct {
			kept = append(kept, reports[i])
		}
	}
	return kept
}
