package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/custody/internal/chain"
    "github.com/congo-pay/custody/internal/faucet"
)

// RegisterChainRoutes wires inbound transactions and account reads.
func RegisterChainRoutes(r fiber.Router, h *chain.Handler) {
    r.Post("/transactions", h.SendTransaction)
    r.Get("/accounts/:address/balance", h.Balance)
}

// RegisterFaucetRoutes wires the development funding endpoint behind limiter.
func RegisterFaucetRoutes(r fiber.Router, h *faucet.Handler, limiter fiber.Handler) {
    r.Post("/accounts/:address/fund", limiter, h.Fund)
}
