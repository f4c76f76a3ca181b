package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"nft-rental-escrow/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestInvariantViolation_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("info", "json", &buf)
	defer logger.Initialize("info", "text")

	logger.InvariantViolation(context.Background(), "fee_vault_balance", "expected", 9, "actual", 8)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "fee_vault_balance", entry["invariant"])
}

func TestExitMethodWithError_ExpectedStaysQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("info", "text", &buf)
	defer logger.Initialize("info", "text")

	logger.ExitMethodWithError("Rent", errors.New("not listed"), true)
	assert.Empty(t, buf.String())

	logger.ExitMethodWithError("Rent", errors.New("db down"), false)
	assert.Contains(t, buf.String(), "db down")
}
