package halcyon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halcyon.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  file_logging_enabled: true
  directory: /var/log/halcyon
  filename: halcyon.log

bot:
  identifier: testbot
  token: abc123
  intents: 513
  shard_count: 4
  shard_ids: [0, 1]
  large_threshold: 150

gateway:
  api_base_url: https://api.example/v10
  fail_on_non_resumable_close: true

producer:
  type: redis
  channel: events
  address: localhost:6379

http:
  host: 127.0.0.1:8080
`), 0o600))

	fileConfig, err := LoadFileConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", fileConfig.Logging.Level)
	assert.True(t, fileConfig.Logging.FileLoggingEnabled)
	assert.Equal(t, "redis", fileConfig.Producer.Type)
	assert.Equal(t, "127.0.0.1:8080", fileConfig.HTTP.Host)

	config := fileConfig.ClientConfig()

	assert.Equal(t, "testbot", config.Identifier)
	assert.Equal(t, "abc123", config.Token)
	assert.Equal(t, discord.GatewayIntent(513), config.Intents)
	assert.Equal(t, int32(4), config.ShardCount)
	assert.Equal(t, []int32{0, 1}, config.ShardIDs)
	assert.Equal(t, int32(150), config.LargeThreshold)
	assert.Equal(t, "https://api.example/v10", config.APIBaseURL)
	assert.True(t, config.FailOnNonResumableClose)
}

func TestLoadFileConfigMissing(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
