package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadMemoryDriverSkipsDatabase(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("DB_HOST", "")

	c := Load()
	assert.Equal(t, DriverMemory, c.StoreDriver)
	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.DBHost)
}

func TestLoadBookingConfigDefaults(t *testing.T) {
	for _, k := range []string{"HOLD_DURATION", "CANCELLATION_WINDOW", "UNPAID_TIMEOUT", "ARCHIVE_AFTER", "EVENTS_ENABLED", "PAYMENT_SUCCESS_RATE", "BOOKING_LOG_DIR"} {
		t.Setenv(k, "")
	}
	c := LoadBookingConfig()
	assert.Equal(t, 10*time.Minute, c.HoldDuration)
	assert.Equal(t, 2*time.Hour, c.CancellationWindow)
	assert.Equal(t, 30*time.Minute, c.UnpaidTimeout)
	assert.Equal(t, 30*24*time.Hour, c.ArchiveAfter)
	assert.True(t, c.EventsEnabled)
	assert.Equal(t, "logs", c.BookingLogDir)
	assert.InDelta(t, 0.9, c.PaymentSuccessRate, 1e-9)
}

func TestLoadBookingConfigOverrides(t *testing.T) {
	t.Setenv("HOLD_DURATION", "5m")
	t.Setenv("EVENTS_ENABLED", "off")
	t.Setenv("PAYMENT_SUCCESS_RATE", "1.5")
	t.Setenv("SWEEP_CANCEL_UNPAID_SCHEDULE", "@every 1m")

	c := LoadBookingConfig()
	assert.Equal(t, 5*time.Minute, c.HoldDuration)
	assert.False(t, c.EventsEnabled)
	assert.InDelta(t, 0.9, c.PaymentSuccessRate, 1e-9, "out of range falls back")
	assert.Equal(t, "@every 1m", c.SweepCancelUnpaid)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 10*time.Second, c.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "1m")

	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.Equal(t, time.Minute, c.TTL)
}
