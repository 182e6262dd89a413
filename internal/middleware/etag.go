package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETag hashes successful GET responses into a weak ETag and answers a
// matching If-None-Match with 304. Responses are per user, so they are marked
// private and must be revalidated.
func ETag() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return c.Next()
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		etag := generateETag(body)
		c.Set(fiber.HeaderETag, etag)
		c.Set(fiber.HeaderCacheControl, "private, no-cache")

		if inm := c.Get(fiber.HeaderIfNoneMatch); inm != "" && etagMatches(etag, inm) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

// generateETag derives a weak validator from the first 16 bytes of the body hash
func generateETag(body []byte) string {
	hash := sha256.Sum256(body)
	return `W/"` + hex.EncodeToString(hash[:16]) + `"`
}

// etagMatches reports whether etag is listed in If-None-Match, using weak
// comparison (RFC 7232)
func etagMatches(etag, ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "*" {
		return true
	}

	want := normalizeETag(etag)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if candidate = strings.TrimSpace(candidate); candidate != "" && normalizeETag(candidate) == want {
			return true
		}
	}
	return false
}

func normalizeETag(etag string) string {
	return strings.TrimPrefix(strings.TrimSpace(etag), "W/")
}
