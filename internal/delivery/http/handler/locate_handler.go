package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/delivery/http/middleware"
	"github.com/ichnaea-service/internal/pkg/utils"
	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/usecase/dto"
)

// LocateHandler serves the geolocate endpoint.
type LocateHandler struct {
	locateUC *usecase.LocateUseCase
	logger   *zap.Logger
}

func NewLocateHandler(locateUC *usecase.LocateUseCase, logger *zap.Logger) *LocateHandler {
	return &LocateHandler{locateUC: locateUC, logger: logger}
}

// Geolocate handles POST /v1/geolocate. An empty body is a legal
// IP-only query; a body that is not valid JSON is a parse error.
func (h *LocateHandler) Geolocate(c *fiber.Ctx) error {
	req, err := dto.ParseGeolocateRequest(c.Body())
	if err != nil {
		return utils.SendParseError(c)
	}

	query := req.ToQuery(middleware.KeyFromContext(c), c.IP())
	result, err := h.locateUC.Locate(c.UserContext(), query)
	if err != nil {
		h.logger.Error("Locate failed", zap.Error(err))
		return utils.SendError(c, err)
	}
	if result == nil {
		return utils.SendNotFound(c)
	}

	return c.JSON(utils.LocationResponse{
		Location: utils.LatLng{Lat: result.Lat, Lng: result.Lon},
		Accuracy: result.Accuracy,
		Fallback: result.Fallback,
	})
}
