package api

import (
	"strings"
	"time"

	"github.com/gmsas95/medwatch/internal/errors"
	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

// authMiddleware resolves the bearer token to a caller. A request without an
// Authorization header passes through without one so the handler can decide;
// a header with a bad token is rejected here.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return c.Next()
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		uid, err := ParseToken(s.config.Security.JWTSecret, tokenString)
		if err != nil {
			return writeError(c, errors.New(errors.CodeUnauthenticated, "invalid token"))
		}

		c.Locals(callerKey, &notify.Caller{UID: uid})
		return c.Next()
	}
}

// requireCaller rejects requests the auth middleware found no caller for.
func (s *Server) requireCaller(c *fiber.Ctx) error {
	if callerFrom(c) == nil {
		return writeError(c, errors.ErrUnauthenticated)
	}
	return c.Next()
}

func callerFrom(c *fiber.Ctx) *notify.Caller {
	caller, _ := c.Locals(callerKey).(*notify.Caller)
	return caller
}

// IssueToken mints an HS256 token whose subject is uid.
func IssueToken(secret, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and returns its subject.
func ParseToken(secret, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}
