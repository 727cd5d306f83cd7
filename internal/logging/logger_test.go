// internal/logging/logger_test.go
package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	prev := L()
	defer Set(prev)

	require.NoError(t, Init("release"))
	assert.NotNil(t, L())
	require.NoError(t, Init("debug"))
	assert.True(t, L().Core().Enabled(zap.DebugLevel))
}

func TestSet(t *testing.T) {
	prev := L()
	defer Set(prev)

	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	L().Info("hello", zap.String("k", "v"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)
}
