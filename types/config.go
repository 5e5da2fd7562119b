package types

import "time"

const (
	DefaultMinCollaborators      = 2
	DefaultMaxCollaborators      = 3
	DefaultConfirmationBlocks    = 3
	DefaultMaxRetryAttempts      = 3
	DefaultRetryDelay            = 2 * time.Second
	DefaultPollInterval          = 2 * time.Second
	DefaultTimeout               = 30 * time.Second
	DefaultSplitPercentTolerance = 0.01
)

// ClientConfig contains configuration for the chain gateway.
type ClientConfig struct {
	Network Network       `json:"network" mapstructure:"network"`
	RPCUrl  string        `json:"rpcUrl" mapstructure:"rpc_url" validate:"omitempty,url"`
	ChainID string        `json:"chainId,omitempty" mapstructure:"chain_id" validate:"omitempty,numeric"`
	Timeout time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	HexSeed string        `json:"hexSeed" mapstructure:"hex_seed"` // signer private key, hex encoded
}

// Config contains global configuration for a tip-splitting session.
type Config struct {
	Network Network      `json:"network" mapstructure:"network" validate:"required"`
	Client  ClientConfig `json:"client" mapstructure:"client"`

	// Sender is the connected wallet address. Empty means no wallet is connected.
	Sender string `json:"sender,omitempty" mapstructure:"sender" validate:"omitempty,eth_addr"`

	MinCollaborators   int           `json:"minCollaborators" mapstructure:"min_collaborators" validate:"gte=1"`
	MaxCollaborators   int           `json:"maxCollaborators" mapstructure:"max_collaborators" validate:"gtefield=MinCollaborators"`
	ConfirmationBlocks uint64        `json:"confirmationBlocks" mapstructure:"confirmation_blocks" validate:"gte=1"`
	MaxRetryAttempts   int           `json:"maxRetryAttempts" mapstructure:"max_retry_attempts" validate:"gte=1"`
	RetryDelay         time.Duration `json:"retryDelay" mapstructure:"retry_delay" validate:"gte=0"`
	PollInterval       time.Duration `json:"pollInterval" mapstructure:"poll_interval" validate:"gte=0"`
	DefaultTimeout     time.Duration `json:"defaultTimeout,omitempty" mapstructure:"default_timeout"`

	// CancelTrackersOnReset stops in-flight confirmation trackers when the
	// session is reset. Off by default: trackers keep running.
	CancelTrackersOnReset bool `json:"cancelTrackersOnReset" mapstructure:"cancel_trackers_on_reset"`

	LogLevel      string     `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool       `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`
	Currencies    []Currency `json:"currencies" mapstructure:"currencies" validate:"omitempty,dive"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig(network Network) Config {
	return Config{
		Network:            network,
		Client:             ClientConfig{Network: network, Timeout: DefaultTimeout},
		MinCollaborators:   DefaultMinCollaborators,
		MaxCollaborators:   DefaultMaxCollaborators,
		ConfirmationBlocks: DefaultConfirmationBlocks,
		MaxRetryAttempts:   DefaultMaxRetryAttempts,
		RetryDelay:         DefaultRetryDelay,
		PollInterval:       DefaultPollInterval,
		DefaultTimeout:     DefaultTimeout,
		LogLevel:           "info",
		Currencies:         DefaultCurrencies(network),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig(c.Network)
	if c.Client.Network == "" {
		c.Client.Network = c.Network
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = d.Client.Timeout
	}
	if c.MinCollaborators == 0 {
		c.MinCollaborators = d.MinCollaborators
	}
	if c.MaxCollaborators == 0 {
		c.MaxCollaborators = d.MaxCollaborators
	}
	if c.ConfirmationBlocks == 0 {
		c.ConfirmationBlocks = d.ConfirmationBlocks
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if len(c.Currencies) == 0 {
		c.Currencies = d.Currencies
	}
	return c
}
