package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-reservation/internal/config"
	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func newCtx(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"sub": 7, "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": 7, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no subject", "Bearer " + signed(t, secret, jwt.MapClaims{"exp": exp}), http.StatusUnauthorized},
		{"numeric subject", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": 7, "role": "CUSTOMER", "exp": exp}), http.StatusOK},
		{"string subject", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "7", "role": "CUSTOMER", "exp": exp}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newCtx(http.MethodGet, "/v1/bookings/me")
			if tc.header != "" {
				c.Request().Header.Set("Authorization", tc.header)
			}
			var gotID uint64
			err := JWTAuth(secret)(func(c echo.Context) error {
				gotID, _ = UserID(c)
				return ok(c)
			})(c)
			require.NoError(t, err)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, uint64(7), gotID)
				assert.Equal(t, "CUSTOMER", Role(c))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	c, rec := newCtx(http.MethodPost, "/v1/admin/trips")
	c.Set(roleKey, "CUSTOMER")
	require.NoError(t, RequireRole("ADMIN")(ok)(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newCtx(http.MethodPost, "/v1/admin/trips")
	c.Set(roleKey, "ADMIN")
	require.NoError(t, RequireRole("ADMIN")(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newCtx(http.MethodPost, "/v1/bookings/hold")
	c.SetPath("/v1/bookings/hold")
	c.Request().RemoteAddr = "10.0.0.1:5555"

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:POST /v1/bookings/hold", buildRateKey(cfg, c))

	c.Set(userIDKey, uint64(42))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	c, rec := newCtx(http.MethodPost, "/v1/bookings/hold")
	require.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucketFailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}

	// no expectation registered: every redis call errors
	c, rec := newCtx(http.MethodPost, "/v1/bookings/hold")
	require.NoError(t, NewTokenBucket(cfg, db)(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketBlocks(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl", KeyStrategy: "ip"}

	c, rec := newCtx(http.MethodPost, "/v1/bookings/hold")
	c.Request().RemoteAddr = "10.0.0.9:1"
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectEvalSha(limiterScript.Hash(), []string{"rl:ip:10.0.0.9"},
		now.UnixMilli(), 1, 1, int64(1000), int64(60)).
		SetVal([]interface{}{int64(0), int64(0), int64(1500)})

	called := false
	err := newTokenBucket(cfg, db, func() time.Time { return now })(func(c echo.Context) error {
		called = true
		return ok(c)
	})(c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}

	c, rec := newCtx(http.MethodGet, "/v1/trips/3")
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	payload, err := encodePayload(http.StatusOK, hdr, []byte(`{"id":3}`))
	require.NoError(t, err)
	mock.ExpectGet(cacheKeyFrom(cfg, c)).SetVal(string(payload))

	err = NewRedisCache(cfg, db)(func(c echo.Context) error {
		t.Fatal("handler must not run on a hit")
		return nil
	})(c)
	require.NoError(t, err)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, `{"id":3}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeyDependsOnPath(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache"}
	a, _ := newCtx(http.MethodGet, "/v1/trips/1")
	b, _ := newCtx(http.MethodGet, "/v1/trips/2")
	assert.NotEqual(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b))
}

func TestDecodePayloadRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 0})
	assert.False(t, ok)
}

func TestRequestLoggerSetsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	c, rec := newCtx(http.MethodGet, "/healthz")
	c.Request().Header.Set(RequestIDHeader, "req-123")

	var seen string
	err := RequestLogger(logrus.NewEntry(l))(func(c echo.Context) error {
		seen = logging.CorrelationIDFromContext(c.Request().Context())
		return c.String(http.StatusNotFound, "nope")
	})(c)
	require.NoError(t, err)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"correlation_id":"req-123"`)

	c, rec = newCtx(http.MethodGet, "/healthz")
	require.NoError(t, RequestLogger(logrus.NewEntry(l))(ok)(c))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
