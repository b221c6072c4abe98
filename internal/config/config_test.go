package config

import (
	"flag"
	"io"
	"testing"
	"time"

	"localex/internal/logger"
	"localex/internal/pairing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, logger.INFO, cfg.Level)
	assert.Equal(t, 3, cfg.QueueSize)
	assert.Zero(t, cfg.AnnounceInterval)
	assert.Equal(t, pairing.DropNewest, cfg.Policy)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("LOCALEX_LOG_LEVEL", "debug")
	t.Setenv("LOCALEX_QUEUE_SIZE", "8")
	t.Setenv("LOCALEX_ANNOUNCE_INTERVAL", "5s")
	t.Setenv("LOCALEX_DROP_POLICY", "oldest")

	cfg, err := Load(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, logger.DEBUG, cfg.Level)
	assert.Equal(t, 8, cfg.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.AnnounceInterval)
	assert.Equal(t, pairing.DropOldest, cfg.Policy)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("LOCALEX_QUEUE_SIZE", "8")

	cfg, err := Load(newFlagSet(), []string{"-queue-size", "2", "-log-level", "warn"})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.QueueSize)
	assert.Equal(t, logger.WARN, cfg.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][]string{
		"log level":  {"-log-level", "loud"},
		"queue size": {"-queue-size", "0"},
		"interval":   {"-interval", "-1s"},
		"policy":     {"-drop", "block"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newFlagSet(), args)
			assert.Error(t, err)
		})
	}
}

func TestUsageListsVariables(t *testing.T) {
	assert.Contains(t, Usage(), "LOCALEX_QUEUE_SIZE")
}
