package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IAMCORE_DATABASE_DSN", "/var/lib/iamcore/iamcore.db")
	t.Setenv("IAMCORE_DEFAULT_INSTANCE", "inst-1")
	t.Setenv("IAMCORE_JWT_SECRET", "secret")
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("DefaultsApply", func(t *testing.T) {
		setRequired(t)

		cfg, err := config.LoadFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.ListenAddr)
		assert.Equal(t, "default", cfg.KeyID)
		assert.Equal(t, uint32(200), cfg.ProjectionBatchSize)
		assert.Equal(t, 5*time.Second, cfg.ProjectionPollInterval)
		assert.False(t, cfg.NotificationsEnabled())
	})

	t.Run("MissingDSNFails", func(t *testing.T) {
		setRequired(t)
		t.Setenv("IAMCORE_DATABASE_DSN", "")

		_, err := config.LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IAMCORE_DATABASE_DSN")
	})

	t.Run("BrokerListEnablesNotifications", func(t *testing.T) {
		setRequired(t)
		t.Setenv("IAMCORE_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

		cfg, err := config.LoadFromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
		assert.True(t, cfg.NotificationsEnabled())
		assert.Equal(t, "iamcore.events", cfg.KafkaTopic)
	})

	t.Run("InvalidDurationRejected", func(t *testing.T) {
		setRequired(t)
		t.Setenv("IAMCORE_PROJECTION_POLL_INTERVAL", "soon")

		_, err := config.LoadFromEnv()
		require.Error(t, err)
	})

	t.Run("MachineIDRangeChecked", func(t *testing.T) {
		setRequired(t)
		t.Setenv("IAMCORE_MACHINE_ID", "70000")

		_, err := config.LoadFromEnv()
		require.Error(t, err)
	})
}
