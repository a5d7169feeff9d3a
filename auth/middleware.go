package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	DisableAuth bool
	// OnAuthenticated runs after a token verifies. An error is logged, not fatal.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
	// UnauthorizedMessage overrides the 401 body for every failure.
	UnauthorizedMessage string
}

var localClaims = &Claims{
	Subject: "local-dev",
	Issuer:  "local",
	Raw:     map[string]any{"sub": "local-dev"},
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.DisableAuth || AuthDisabled() {
			c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), localClaims))
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, cfg, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.WithField("path", c.Request.URL.Path).Debug("auth failure: missing Authorization header")
			respondUnauthorized(c, cfg, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.WithField("path", c.Request.URL.Path).Info("auth failure: malformed Authorization header")
			respondUnauthorized(c, cfg, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.WithFields(log.Fields{"path": c.Request.URL.Path, "err": err}).Info("auth failure: token invalid")
			respondUnauthorized(c, cfg, "invalid token")
			return
		}

		attach(c, claims, cfg)
		c.Next()
	}
}

// Optional attaches claims when a valid bearer token is present and
// otherwise lets the request through anonymously.
func Optional(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.DisableAuth || AuthDisabled() {
			c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), localClaims))
			c.Next()
			return
		}
		if verifier != nil {
			if token, ok := extractBearerToken(c.GetHeader("Authorization")); ok {
				if claims, err := verifier.Verify(token); err == nil {
					attach(c, claims, cfg)
				} else {
					log.WithFields(log.Fields{"path": c.Request.URL.Path, "err": err}).Debug("ignoring invalid optional token")
				}
			}
		}
		c.Next()
	}
}

func attach(c *gin.Context, claims *Claims, cfg MiddlewareConfig) {
	if cfg.OnAuthenticated != nil {
		if err := cfg.OnAuthenticated(c, claims); err != nil {
			log.WithFields(log.Fields{"user_id": claims.Subject, "err": err}).Warn("post-auth hook failed")
		}
	}
	c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
}

// BearerToken returns the bearer token on the request, if any.
func BearerToken(c *gin.Context) (string, bool) {
	return extractBearerToken(c.GetHeader("Authorization"))
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, cfg MiddlewareConfig, message string) {
	if cfg.UnauthorizedMessage != "" {
		message = cfg.UnauthorizedMessage
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
