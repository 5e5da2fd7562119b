// Package config loads a session Config from a file, the environment and
// optional .env files.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vitwit/tipsplit/types"
	"github.com/vitwit/tipsplit/utils"
)

// EnvPrefix prefixes every environment override, e.g. TIPSPLIT_CLIENT_RPC_URL.
const EnvPrefix = "TIPSPLIT"

// Load reads path (yaml, json or toml; empty means defaults only), applies
// TIPSPLIT_* environment overrides and validates the result. envFiles are
// loaded into the environment first; missing ones are skipped and variables
// already set are never overwritten.
func Load(path string, envFiles ...string) (*types.Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, types.NewPaymentError(types.ErrConfigError, "load env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.NewPaymentError(types.ErrConfigError, "read config %s: %v", path, err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.NewPaymentError(types.ErrConfigError, "decode config: %v", err)
	}

	cfg = cfg.WithDefaults()
	if err := utils.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig(types.NetworkBaseSepolia)

	v.SetDefault("network", string(d.Network))
	v.SetDefault("sender", "")

	v.SetDefault("client.network", "")
	v.SetDefault("client.rpc_url", "")
	v.SetDefault("client.chain_id", "")
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.hex_seed", "")

	v.SetDefault("min_collaborators", d.MinCollaborators)
	v.SetDefault("max_collaborators", d.MaxCollaborators)
	v.SetDefault("confirmation_blocks", d.ConfirmationBlocks)
	v.SetDefault("max_retry_attempts", d.MaxRetryAttempts)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("default_timeout", d.DefaultTimeout)
	v.SetDefault("cancel_trackers_on_reset", false)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("enable_metrics", false)
}
