package adminapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
)

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestJWTMiddlewareRejectsMissingAuthorizationHeader(t *testing.T) {
	r := NewRouter()
	r.Use(JWTMiddleware(JWTConfig{Secret: "s3cret"}))
	r.GET("/protected", func(c *RequestContext) error { return c.JSON(fasthttp.StatusOK, nil) })

	ctx := requestCtx(fasthttp.MethodGet, "/protected")
	r.Serve(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestJWTMiddlewareAcceptsValidBearerToken(t *testing.T) {
	secret := "s3cret"
	r := NewRouter()
	r.Use(JWTMiddleware(JWTConfig{Secret: secret}))
	called := false
	r.GET("/protected", func(c *RequestContext) error {
		called = true
		return c.JSON(fasthttp.StatusOK, nil)
	})

	ctx := requestCtx(fasthttp.MethodGet, "/protected")
	ctx.Request.Header.Set("Authorization", "Bearer "+signToken(t, secret))
	r.Serve(ctx)

	if !called {
		t.Fatalf("expected the handler to run with a valid token")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestJWTMiddlewareRejectsWrongSigningSecret(t *testing.T) {
	r := NewRouter()
	r.Use(JWTMiddleware(JWTConfig{Secret: "s3cret"}))
	r.GET("/protected", func(c *RequestContext) error { return c.JSON(fasthttp.StatusOK, nil) })

	ctx := requestCtx(fasthttp.MethodGet, "/protected")
	ctx.Request.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret"))
	r.Serve(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401 for a token signed with the wrong secret, got %d", ctx.Response.StatusCode())
	}
}

func TestJWTMiddlewareSkipsConfiguredPaths(t *testing.T) {
	r := NewRouter()
	r.Use(JWTMiddleware(JWTConfig{Secret: "s3cret", SkipPaths: []string{"/health"}}))
	called := false
	r.GET("/health", func(c *RequestContext) error {
		called = true
		return c.JSON(fasthttp.StatusOK, nil)
	})

	r.Serve(requestCtx(fasthttp.MethodGet, "/health"))

	if !called {
		t.Fatalf("expected /health to bypass auth")
	}
}

func TestHashAndVerifyAPIKeyRoundTrip(t *testing.T) {
	hash, err := HashAPIKey("top-secret-key")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	if !VerifyAPIKey(hash, "top-secret-key") {
		t.Fatalf("expected VerifyAPIKey to accept the original key")
	}
	if VerifyAPIKey(hash, "wrong-key") {
		t.Fatalf("expected VerifyAPIKey to reject a wrong key")
	}
}
