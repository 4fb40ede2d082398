package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/delivery/http/middleware"
	"github.com/ichnaea-service/internal/geo"
	"github.com/ichnaea-service/internal/pkg/utils"
	"github.com/ichnaea-service/internal/usecase"
	"github.com/ichnaea-service/internal/usecase/dto"
)

// RegionHandler serves the coarse country endpoint.
type RegionHandler struct {
	locateUC *usecase.LocateUseCase
	logger   *zap.Logger
}

func NewRegionHandler(locateUC *usecase.LocateUseCase, logger *zap.Logger) *RegionHandler {
	return &RegionHandler{locateUC: locateUC, logger: logger}
}

// Country handles POST /v1/country: the same query shape as geolocate,
// answered with a region code instead of coordinates.
func (h *RegionHandler) Country(c *fiber.Ctx) error {
	req, err := dto.ParseGeolocateRequest(c.Body())
	if err != nil {
		return utils.SendParseError(c)
	}

	query := req.ToQuery(middleware.KeyFromContext(c), c.IP())
	region, err := h.locateUC.Region(c.UserContext(), query)
	if err != nil {
		h.logger.Error("Region lookup failed", zap.Error(err))
		return utils.SendError(c, err)
	}
	if region == "" {
		return utils.SendNotFound(c)
	}

	return c.JSON(utils.RegionResponse{
		CountryCode: region,
		CountryName: geo.RegionName(region),
	})
}
