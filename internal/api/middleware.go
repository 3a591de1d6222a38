package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pranab56/TradeLog-sub000/internal/auth"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

const localUserID = "user_id"

// JWTAuth resolves the caller to an opaque user id and stores it in
// Locals. Everything past this middleware trusts that id.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ParseBearer(c.Get("Authorization"))
		if err != nil {
			return respondErr(c, apperr.Unauthenticated("missing or malformed authorization"))
		}
		claims, err := auth.ParseAndValidate(secret, token)
		if err != nil {
			return respondErr(c, apperr.Unauthenticated("invalid token"))
		}
		c.Locals(localUserID, claims.UserID)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}

// RateLimit is a fixed-window limiter keyed per user, counted in Redis
// so it holds across instances.
func RateLimit(rdb *redis.Client, prefix string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:rl:%s", prefix, currentUser(c))
		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// limiter failure should not take the API down
			return c.Next()
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}
		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func respondErr(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code": apperr.CodeUnknown, "error": "internal error",
		})
	}
	return c.Status(statusFor(ae.Code)).JSON(fiber.Map{
		"code": ae.Code, "error": ae.Message,
	})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case apperr.CodeNotAMember, apperr.CodeNotOwner:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeValidation:
		return fiber.StatusBadRequest
	case apperr.CodeConflict:
		return fiber.StatusConflict
	case apperr.CodeTransientIO:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
