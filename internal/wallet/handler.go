package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"

	"github.com/congo-pay/custody/internal/chain"
	"github.com/congo-pay/custody/internal/units"
	"github.com/congo-pay/custody/internal/validation"
)

// Handler exposes wallet endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type deployRequest struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
}

type sendRequest struct {
	Caller string `json:"caller" validate:"required,eth_addr"`
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required"`
}

type walletResponse struct {
	Address      string    `json:"address"`
	Owner        string    `json:"owner"`
	Balance      string    `json:"balance"`
	BalanceEther string    `json:"balance_ether"`
	DepositCount uint64    `json:"deposit_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type depositResponse struct {
	ID           string    `json:"id"`
	Sender       string    `json:"sender"`
	Amount       string    `json:"amount"`
	DepositCount uint64    `json:"deposit_count"`
	At           time.Time `json:"at"`
}

// Deploy creates a wallet for the requested owner.
func (h *Handler) Deploy(c *fiber.Ctx) error {
	var req deployRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(&req); err != nil {
		return invalidRequest(c, err)
	}

	ctx := c.UserContext()
	w, err := h.service.Deploy(ctx, common.HexToAddress(req.Owner))
	if err != nil {
		return mapError(err)
	}
	// value sent to the address before deployment stays with it
	bal, err := h.service.ContractBalance(ctx, w.Address)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{
		Address:      w.Address.Hex(),
		Owner:        w.Owner.Hex(),
		Balance:      bal.Dec(),
		BalanceEther: units.FormatEther(bal),
		CreatedAt:    w.CreatedAt,
	})
}

// Get returns wallet metadata with its balance and deposit count.
func (h *Handler) Get(c *fiber.Ctx) error {
	addr, err := addressParam(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	w, err := h.service.Get(ctx, addr)
	if err != nil {
		return mapError(err)
	}
	bal, err := h.service.ContractBalance(ctx, addr)
	if err != nil {
		return mapError(err)
	}
	count, err := h.service.DepositCount(ctx, addr)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(walletResponse{
		Address:      w.Address.Hex(),
		Owner:        w.Owner.Hex(),
		Balance:      bal.Dec(),
		BalanceEther: units.FormatEther(bal),
		DepositCount: count,
		CreatedAt:    w.CreatedAt,
	})
}

// Balance returns the value held by the wallet.
func (h *Handler) Balance(c *fiber.Ctx) error {
	addr, err := addressParam(c)
	if err != nil {
		return err
	}
	bal, err := h.service.ContractBalance(c.UserContext(), addr)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"address":       addr.Hex(),
		"balance":       bal.Dec(),
		"balance_ether": units.FormatEther(bal),
	})
}

// DepositCount returns how many deposits the wallet accepted.
func (h *Handler) DepositCount(c *fiber.Ctx) error {
	addr, err := addressParam(c)
	if err != nil {
		return err
	}
	count, err := h.service.DepositCount(c.UserContext(), addr)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"address": addr.Hex(), "deposit_count": count})
}

// Deposits lists the wallet's Deposit events.
func (h *Handler) Deposits(c *fiber.Ctx) error {
	addr, err := addressParam(c)
	if err != nil {
		return err
	}
	deposits, err := h.service.Deposits(c.UserContext(), addr)
	if err != nil {
		return mapError(err)
	}
	out := make([]depositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, depositResponse{
			ID:           d.ID.String(),
			Sender:       d.Sender.Hex(),
			Amount:       d.Amount.Dec(),
			DepositCount: d.DepositCount,
			At:           d.At,
		})
	}
	return c.JSON(fiber.Map{"address": addr.Hex(), "deposits": out})
}

// Send forwards value out of the wallet with the mechanism named in the path.
func (h *Handler) Send(c *fiber.Ctx) error {
	addr, err := addressParam(c)
	if err != nil {
		return err
	}
	m := Mechanism(c.Params("mechanism"))
	if !m.Valid() {
		return fiber.NewError(http.StatusNotFound, ErrInvalidMechanism.Error())
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(&req); err != nil {
		return invalidRequest(c, err)
	}
	amount, err := units.ParseValue(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Send(c.UserContext(), m, SendInput{
		Caller:      common.HexToAddress(req.Caller),
		Wallet:      addr,
		Destination: common.HexToAddress(req.To),
		Amount:      amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"wallet":         res.Wallet.Hex(),
		"destination":    res.Destination.Hex(),
		"amount":         res.Amount.Dec(),
		"mechanism":      string(res.Mechanism),
		"wallet_balance": balanceString(res.WalletBalance),
		"completed_at":   res.CompletedAt,
	})
}

func addressParam(c *fiber.Ctx) (common.Address, error) {
	addr, err := validation.ParseAddress(c.Params("address"))
	if err != nil {
		return common.Address{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return addr, nil
}

func invalidRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error":   "invalid request",
		"details": validation.FormatValidationError(err),
	})
}

func balanceString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, ErrInsufficientBalance.Error())
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "not owner of wallet")
	case errors.Is(err, ErrInvalidOwner):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWalletExists):
		return fiber.NewError(http.StatusConflict, "wallet exists")
	case errors.Is(err, ErrTransferRejected),
		errors.Is(err, ErrSendRejected),
		errors.Is(err, ErrCallRejected),
		errors.Is(err, chain.ErrCallDepth):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
