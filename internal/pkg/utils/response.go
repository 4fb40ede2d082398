package utils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ichnaea-service/internal/pkg/errors"
)

// The geolocation API speaks the Google wire format: a location object on
// success, a structured error envelope otherwise.

type LocationResponse struct {
	Location LatLng  `json:"location"`
	Accuracy float64 `json:"accuracy"`
	Fallback string  `json:"fallback,omitempty"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RegionResponse struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Fallback    string `json:"fallback,omitempty"`
}

type apiError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Errors  []errorElement `json:"errors"`
}

type errorElement struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// SendNotFound emits the fixed geolocation miss envelope.
func SendNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": apiError{
			Code:    fiber.StatusNotFound,
			Message: "Not found",
			Errors: []errorElement{
				{Domain: "geolocation", Reason: "notFound", Message: "Not found"},
			},
		},
	})
}

// SendKeyError emits the 400 invalid_key envelope.
func SendKeyError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": apiError{
			Code:    fiber.StatusBadRequest,
			Message: "invalid_key",
			Errors: []errorElement{
				{Domain: "usageLimits", Reason: "keyInvalid", Message: "invalid_key"},
			},
		},
	})
}

// SendLimitExceeded emits the 403 rate-limit envelope.
func SendLimitExceeded(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": apiError{
			Code:    fiber.StatusForbidden,
			Message: "limit_exceeded",
			Errors: []errorElement{
				{Domain: "usageLimits", Reason: "dailyLimitExceeded", Message: "limit_exceeded"},
			},
		},
	})
}

// SendParseError emits the 400 schema-violation envelope.
func SendParseError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": apiError{
			Code:    fiber.StatusBadRequest,
			Message: "Parse Error",
			Errors: []errorElement{
				{Domain: "global", Reason: "parseError", Message: "Parse Error"},
			},
		},
	})
}

// SendError maps an AppError to its envelope, defaulting to a bare 500.
func SendError(c *fiber.Ctx, err error) error {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.ErrInternalServer
	}
	switch appErr {
	case errors.ErrNotFound:
		return SendNotFound(c)
	case errors.ErrInvalidKey:
		return SendKeyError(c)
	case errors.ErrLimitExceeded:
		return SendLimitExceeded(c)
	case errors.ErrParseError:
		return SendParseError(c)
	}
	return c.Status(appErr.StatusCode).JSON(fiber.Map{
		"error": apiError{
			Code:    appErr.StatusCode,
			Message: appErr.Message,
			Errors: []errorElement{
				{Domain: "global", Reason: appErr.Code, Message: appErr.Message},
			},
		},
	})
}
