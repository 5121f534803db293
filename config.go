package halcyon

import (
	"fmt"
	"os"

	"github.com/halcyon-dev/halcyon/discord"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration consumed by the bundled binary.
// Library users construct Config directly instead.
type FileConfig struct {
	Logging struct {
		Level              string `yaml:"level"`
		FileLoggingEnabled bool   `yaml:"file_logging_enabled"`
		EncodeAsJSON       bool   `yaml:"encode_as_json"`
		Directory          string `yaml:"directory"`
		Filename           string `yaml:"filename"`
		MaxSize            int    `yaml:"max_size"`
		MaxBackups         int    `yaml:"max_backups"`
		MaxAge             int    `yaml:"max_age"`
		Compress           bool   `yaml:"compress"`
	} `yaml:"logging"`

	Bot struct {
		Identifier     string  `yaml:"identifier"`
		Token          string  `yaml:"token"`
		Intents        int64   `yaml:"intents"`
		ShardCount     int32   `yaml:"shard_count"`
		ShardIDs       []int32 `yaml:"shard_ids"`
		LargeThreshold int32   `yaml:"large_threshold"`
	} `yaml:"bot"`

	Gateway struct {
		APIBaseURL              string `yaml:"api_base_url"`
		GatewayURL              string `yaml:"gateway_url"`
		FailOnNonResumableClose bool   `yaml:"fail_on_non_resumable_close"`
	} `yaml:"gateway"`

	Producer struct {
		Type      string   `yaml:"type"`
		Channel   string   `yaml:"channel"`
		Address   string   `yaml:"address"`
		Password  string   `yaml:"password"`
		ClusterID string   `yaml:"cluster_id"`
		ClientID  string   `yaml:"client_id"`
		Brokers   []string `yaml:"brokers"`
	} `yaml:"producer"`

	HTTP struct {
		Host string `yaml:"host"`
	} `yaml:"http"`
}

// LoadFileConfig reads and parses a yaml configuration file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := &FileConfig{}

	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// ClientConfig converts the file configuration into a client Config.
func (fc *FileConfig) ClientConfig() Config {
	return Config{
		Identifier: fc.Bot.Identifier,

		Token:   fc.Bot.Token,
		Intents: discord.GatewayIntent(fc.Bot.Intents),

		ShardCount: fc.Bot.ShardCount,
		ShardIDs:   fc.Bot.ShardIDs,

		LargeThreshold: fc.Bot.LargeThreshold,

		APIBaseURL: fc.Gateway.APIBaseURL,
		GatewayURL: fc.Gateway.GatewayURL,

		FailOnNonResumableClose: fc.Gateway.FailOnNonResumableClose,
	}
}
