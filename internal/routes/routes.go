package routes

import (
    "context"
    "fmt"
    "log/slog"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/logger"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/custody/internal/chain"
    "github.com/congo-pay/custody/internal/config"
    "github.com/congo-pay/custody/internal/events"
    "github.com/congo-pay/custody/internal/faucet"
    "github.com/congo-pay/custody/internal/infra"
    "github.com/congo-pay/custody/internal/ledger"
    "github.com/congo-pay/custody/internal/middleware"
    "github.com/congo-pay/custody/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
    Cfg       config.Config
    DB        *pgxpool.Pool
    Cache     *redis.Client
    Logger    *slog.Logger
    Publisher events.Publisher
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    // Enforce DB/Redis presence outside of dev, even though config also checks.
    if !d.Cfg.IsDev() {
        if d.DB == nil {
            return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
        if d.Cache == nil {
            return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
    }
    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    // Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
    app.Use(logger.New(logger.Config{
        Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
        TimeFormat: "15:04:05",
        TimeZone:   "Local",
    }))
    app.Use(middleware.Audit(d.Logger))
    if d.Cache != nil {
        app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
    }

    // Health
    RegisterHealthRoutes(app, d)

    // Stores
    ctx := context.Background()
    var (
        ledgerBackend ledger.Ledger
        walletRepo    wallet.Repository
    )
    if d.DB != nil {
        pgLedger := ledger.NewPostgresLedger(d.DB)
        pgWallets := wallet.NewPostgresRepository(d.DB)
        if err := infra.EnsureSchemas(ctx, pgLedger, pgWallets); err != nil {
            return err
        }
        ledgerBackend, walletRepo = pgLedger, pgWallets
    } else {
        ledgerBackend = ledger.NewInMemory()
        walletRepo = wallet.NewMemoryRepository()
    }

    // Services and handlers
    env := chain.NewEnvironment(ledgerBackend, d.Publisher, d.Logger)
    walletSvc := wallet.NewService(walletRepo, env, d.Logger, wallet.Options{OwnerOnly: d.Cfg.OwnerOnlySends})
    restored, err := walletSvc.Restore(ctx)
    if err != nil {
        return fmt.Errorf("restore wallets: %w", err)
    }
    d.Logger.Info("wallets restored", "count", restored, "owner_only_sends", d.Cfg.OwnerOnlySends)

    chainHandler := chain.NewHandler(env)
    walletHandler := wallet.NewHandler(walletSvc)

    // API routes
    api := app.Group("/api/v1")
    api.Get("/ping", func(c *fiber.Ctx) error {
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "status":     "ok",
            "request_id": middleware.GetRequestID(c),
            "timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
        })
    })

    RegisterChainRoutes(api, chainHandler)
    RegisterWalletRoutes(api, walletHandler)

    if d.Cfg.IsDev() {
        faucetHandler := faucet.NewHandler(faucet.NewService(env, d.Cfg.FaucetMax, d.Logger))
        limiter := middleware.RateLimit(d.Cache, "fund", d.Cfg.FaucetPerMinute, middleware.ByParam("address"))
        RegisterFaucetRoutes(api, faucetHandler, limiter)
    }

    return nil
}
