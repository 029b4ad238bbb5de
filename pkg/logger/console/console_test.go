package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rushteam/dedupekit/pkg/logger"
)

func TestConsoleLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(NewConsoleLogger(ConsoleLoggerParams{Output: &buf}))
	defer logger.Init()

	logger.Debug("hidden", "k", 1)
	logger.Info("blocking done", "pairs", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "blocking done")
	assert.Contains(t, out, "pairs=42")
}

func TestLogger_NoopWithoutInit(t *testing.T) {
	logger.Init()
	assert.NotPanics(t, func() { logger.Info("nothing", "k", "v") })
}
