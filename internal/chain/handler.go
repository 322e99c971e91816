package chain

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/units"
	"github.com/congo-pay/custody/internal/validation"
)

// Handler exposes inbound transactions and external account reads.
type Handler struct {
	env *Environment
}

// NewHandler constructs a chain handler.
func NewHandler(env *Environment) *Handler {
	return &Handler{env: env}
}

type transactionRequest struct {
	From  string `json:"from" validate:"required,eth_addr"`
	To    string `json:"to" validate:"required,eth_addr"`
	Value string `json:"value" validate:"required"`
	Data  string `json:"data" validate:"omitempty,hexadecimal"`
}

// SendTransaction delivers value from an external account, optionally with a payload.
func (h *Handler) SendTransaction(c *fiber.Ctx) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid request",
			"details": validation.FormatValidationError(err),
		})
	}
	from, err := validation.ParseAddress(req.From)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	to, err := validation.ParseAddress(req.To)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := units.ParseValue(req.Value)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	data, err := validation.ParseData(req.Data)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.env.SendTransaction(c.UserContext(), from, to, value, data); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		case errors.Is(err, ledger.ErrOverflow):
			return fiber.NewError(http.StatusBadRequest, "balance overflow")
		case errors.Is(err, ErrReverted), errors.Is(err, ErrOutOfGas), errors.Is(err, ErrCallDepth):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"from":        from.Hex(),
		"to":          to.Hex(),
		"value":       value.Dec(),
		"data_length": len(data),
	})
}

// Balance returns any account's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	addr, err := validation.ParseAddress(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bal, err := h.env.Balance(c.UserContext(), addr)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"address":       addr.Hex(),
		"balance":       bal.Dec(),
		"balance_ether": units.FormatEther(bal),
	})
}
