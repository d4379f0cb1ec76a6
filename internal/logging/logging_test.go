package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToStandardLogger(t *testing.T) {
	l := FromContext(context.Background())
	assert.Equal(t, logrus.StandardLogger(), l.Logger)
}

func TestContextRoundTrip(t *testing.T) {
	entry := logrus.WithField("correlation_id", "abc")
	ctx := ToContext(context.Background(), entry)
	ctx = ContextWithCorrelationID(ctx, "abc")

	assert.Same(t, entry, FromContext(ctx))
	assert.Equal(t, "abc", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestInitParsesLevel(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	Init("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	Init("nonsense", "text")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
