package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-tenant-auth/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logger.ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, logger.ParseLevel(" warning "))
	require.Equal(t, zerolog.InfoLevel, logger.ParseLevel("nonsense"))
}

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: "info", Output: &buf, Service: "tenant-auth"})

	log.Debug().Msg("hidden")
	log.Info().Str("tenant", "t1").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "visible", entry["message"])
	require.Equal(t, "tenant-auth", entry["service"])
	require.Equal(t, "t1", entry["tenant"])
}
