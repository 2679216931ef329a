package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
)

// SignatureHeader carries the webhook signature: a hex-encoded HMAC-SHA256
// of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature rejects webhook deliveries whose body signature does not
// match the shared secret. Comparison is constant time.
func VerifySignature(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		provided, err := hex.DecodeString(c.Get(SignatureHeader))
		if err != nil || len(provided) == 0 {
			return unauthorized(c)
		}

		mac := hmac.New(sha256.New, key)
		mac.Write(c.Body())
		if !hmac.Equal(provided, mac.Sum(nil)) {
			return unauthorized(c)
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "invalid webhook signature",
	})
}
