// Package auth verifies Supabase access tokens via JWKS or a shared HS256 secret.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultAudience = "authenticated"
)

// Options configures a Verifier. At least one of JWKSURL, Issuer or Secret is required.
type Options struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Secret   string // legacy HS256 projects
}

// Verifier validates access tokens and checks issuer and audience.
type Verifier struct {
	issuer   string
	audience string
	jwks     keyfunc.Keyfunc
	secret   []byte
	parser   *jwt.Parser
}

// NewVerifier builds a verifier. When JWKSURL is empty it defaults to
// {issuer}/.well-known/jwks.json.
func NewVerifier(opts Options) (*Verifier, error) {
	issuer := strings.TrimRight(strings.TrimSpace(opts.Issuer), "/")
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	jwksURL := strings.TrimSpace(opts.JWKSURL)
	if jwksURL == "" && issuer != "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}
	if jwksURL == "" && opts.Secret == "" {
		return nil, errors.New("auth: issuer, JWKS URL or JWT secret must be set")
	}

	v := &Verifier{issuer: issuer, audience: audience}
	methods := []string{}
	if jwksURL != "" {
		kf, err := keyfunc.NewDefault([]string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		v.jwks = kf
		methods = append(methods,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name, jwt.SigningMethodES384.Name)
	}
	if opts.Secret != "" {
		v.secret = []byte(opts.Secret)
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}
	v.parser = jwt.NewParser(parserOpts...)
	return v, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, errors.New("no JWKS configured")
	}
	return v.jwks.Keyfunc(token)
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		Role:      readString(mapClaims, "role"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// AuthDisabled reports whether auth should be skipped for local development.
// It never applies inside Lambda.
func AuthDisabled() bool {
	if strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		if strings.EqualFold(os.Getenv("ENV"), "local") && os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
			log.Debug("auth disabled via AUTH_DISABLED for local development")
			return true
		}
	}
	return false
}
