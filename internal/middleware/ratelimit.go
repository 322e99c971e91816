package middleware

import (
    "net/http"
    "time"

    "github.com/ethereum/go-ethereum/common"
    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByIP counts requests per client IP.
func ByIP(c *fiber.Ctx) string {
    return c.IP()
}

// ByParam counts requests per value of a path parameter, falling back to the
// client IP. Hex addresses are counted in checksum form whatever their case.
func ByParam(name string) KeyFunc {
    return func(c *fiber.Ctx) string {
        v := c.Params(name)
        switch {
        case v == "":
            return c.IP()
        case common.IsHexAddress(v):
            return common.HexToAddress(v).Hex()
        default:
            return v
        }
    }
}

// RateLimit allows maxPerMin requests per key and minute using Redis if available.
func RateLimit(cache *redis.Client, prefix string, maxPerMin int, keyFn KeyFunc) fiber.Handler {
    if maxPerMin <= 0 {
        maxPerMin = 5
    }
    if keyFn == nil {
        keyFn = ByIP
    }
    return func(c *fiber.Ctx) error {
        if cache == nil {
            return c.Next() // no-op without Redis
        }
        key := "rl:" + prefix + ":" + keyFn(c)
        cnt, err := cache.Incr(c.UserContext(), key).Result()
        if err == nil && cnt == 1 {
            cache.Expire(c.UserContext(), key, time.Minute)
        }
        if err != nil {
            return c.Next() // fail-open on cache errors
        }
        if cnt > int64(maxPerMin) {
            return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
        }
        return c.Next()
    }
}
