package middleware // reusable HTTP middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// issued by the auth service and injects the subject and role claims into
// the request context.  Handlers read them through UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC-signed tokens are accepted.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "invalid claims")
			}

			c.Set(userIDKey, claims["sub"])
			c.Set(roleKey, claims["role"])
			uid, ok := UserID(c)
			if !ok {
				return unauthorized(c, "invalid subject")
			}
			// normalize to uint64 for downstream readers
			c.Set(userIDKey, uid)

			ctx := c.Request().Context()
			logger := logging.FromContext(ctx).WithField("user_id", uid)
			c.SetRequest(c.Request().WithContext(logging.ToContext(ctx, logger)))
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "code": "UNAUTHORIZED", "kind": "UNAUTHORIZED"})
}
