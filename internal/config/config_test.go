package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nft-rental-escrow/internal/config"
	"nft-rental-escrow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func programID() domain.Address {
	var a domain.Address
	a[0] = 7
	a[31] = 9
	return a
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
server:
  host: 127.0.0.1
  port: 9090
database:
  host: localhost
  port: 5432
  user: escrow
  database: escrow
program:
  id: %s
`, programID()))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.HTTP.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "end_rental", cfg.Queue.Name)
	assert.Equal(t, 100, cfg.Queue.Capacity)
	assert.Equal(t, uint64(10000), cfg.Queue.MinCrankReward)
	assert.Equal(t, time.Hour, cfg.StaleTaskAge())
	assert.Equal(t, 3, cfg.Program.MaxConflictRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, programID(), cfg.ProgramID())
	assert.True(t, cfg.ArbitratorAddress().IsZero())
	assert.Equal(t, "postgres://escrow:@localhost:5432/escrow?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
server:
  port: 9090
database:
  host: localhost
  user: escrow
  database: escrow
program:
  id: %s
`, programID()))

	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate_Errors(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Server:   config.ServerConfig{Port: 9090},
			Database: config.DatabaseConfig{Host: "h", User: "u", Database: "d"},
			Program:  config.ProgramConfig{ID: programID().String()},
		}
	}

	t.Run("Bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.ErrorContains(t, cfg.Validate(), "invalid server port")
	})

	t.Run("Missing program", func(t *testing.T) {
		cfg := base()
		cfg.Program.ID = ""
		assert.ErrorContains(t, cfg.Validate(), "program id is required")
	})

	t.Run("Bad arbitrator", func(t *testing.T) {
		cfg := base()
		cfg.Program.Arbitrator = "nope"
		assert.ErrorContains(t, cfg.Validate(), "arbitrator")
	})

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}
