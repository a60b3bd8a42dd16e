package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/config"
)

func TestConnectKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	t.Run("no brokers", func(t *testing.T) {
		kp, err := connectKafka(config.Config{}, logger)
		require.NoError(t, err)
		assert.Nil(t, kp)
		assert.NoError(t, kp.Close())
	})

	t.Run("unreachable brokers", func(t *testing.T) {
		cfg := config.Config{KafkaBrokers: "broker1.invalid:9092,broker2.invalid:9092"}
		kp, err := connectKafka(cfg, logger)
		require.Error(t, err)
		assert.Nil(t, kp)
	})
}
