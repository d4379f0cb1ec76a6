package middleware

// identity.go holds the helpers that read the authenticated caller from
// the Echo context.  JWTAuth stores the numeric user id under "user_id"
// and the role under "role".

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// UserID returns the authenticated user id.  ok is false when no valid id
// was stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get(userIDKey).(type) {
	case uint64:
		return t, t > 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t > 0
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(roleKey).(string)
	return r
}

// userKey renders the caller for rate limit keys, "anon" when unknown.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
