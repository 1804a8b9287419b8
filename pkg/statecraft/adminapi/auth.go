package adminapi

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
)

// JWTConfig configures JWTMiddleware — trimmed to the admin surface's
// single use case (a bearer token checked against one shared HMAC secret).
type JWTConfig struct {
	Secret       string
	ValidMethods []string // default ["HS256"]
	SkipPaths    []string
}

// JWTMiddleware validates a "Bearer <token>" Authorization header against
// cfg.Secret, rejecting with 401 on any failure.
func JWTMiddleware(cfg JWTConfig) Middleware {
	validMethods := cfg.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(cfg.Secret), nil
	}

	return func(next Handler) Handler {
		return func(c *RequestContext) error {
			path := string(c.Path())
			for _, skip := range cfg.SkipPaths {
				if path == skip || strings.HasPrefix(path, skip) {
					return next(c)
				}
			}

			header := string(c.Request.Header.Peek("Authorization"))
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return unauthorized(c, "missing or malformed Authorization header")
			}

			token, err := jwt.Parse(parts[1], keyFunc, jwt.WithValidMethods(validMethods))
			if err != nil || !token.Valid {
				return unauthorized(c, "invalid token")
			}
			return next(c)
		}
	}
}

func unauthorized(c *RequestContext, reason string) error {
	c.SetStatusCode(fasthttp.StatusUnauthorized)
	c.Response.Header.Set("WWW-Authenticate", `Bearer realm="statecraft"`)
	return c.JSON(fasthttp.StatusUnauthorized, map[string]any{"error": "unauthorized", "message": reason})
}

// HashAPIKey hashes an admin API key for storage, the way an auth layer
// bolted onto fasthttp typically keeps credentials at rest rather than in
// plaintext config.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether key matches hash produced by HashAPIKey.
func VerifyAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
