package faucet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/units"
	"github.com/congo-pay/custody/internal/validation"
)

// Handler exposes the funding endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a faucet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Value string `json:"value" validate:"required"`
}

// Fund credits the account in the path.
func (h *Handler) Fund(c *fiber.Ctx) error {
	addr, err := validation.ParseAddress(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid request",
			"details": validation.FormatValidationError(err),
		})
	}
	value, err := units.ParseValue(req.Value)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	bal, err := h.service.Fund(c.UserContext(), addr, value)
	if err != nil {
		switch {
		case errors.Is(err, ErrZeroValue), errors.Is(err, ErrAboveLimit), errors.Is(err, ErrContractAccount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"address":       addr.Hex(),
		"funded":        value.Dec(),
		"balance":       bal.Dec(),
		"balance_ether": units.FormatEther(bal),
	})
}
