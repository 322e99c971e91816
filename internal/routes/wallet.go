package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/custody/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
    r.Post("/wallets", h.Deploy)
    r.Get("/wallets/:address", h.Get)
    r.Get("/wallets/:address/balance", h.Balance)
    r.Get("/wallets/:address/deposit-count", h.DepositCount)
    r.Get("/wallets/:address/deposits", h.Deposits)
    r.Post("/wallets/:address/send/:mechanism", h.Send)
}
