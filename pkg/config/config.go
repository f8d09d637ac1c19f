package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BidderConfig represents the earn-bid service configuration
type BidderConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Ethereum   EthereumConfig   `yaml:"ethereum"`
	Wallet     WalletConfig     `yaml:"wallet"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Labels     LabelsConfig     `yaml:"labels"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL              string        `yaml:"rpc_url" validate:"required,url"`
	ChainID             int64         `yaml:"chain_id" validate:"required,gt=0"`
	EarnContract        string        `yaml:"earn_contract" validate:"required,eth_addr"`
	GasLimit            uint64        `yaml:"gas_limit" default:"300000"`
	MaxGasPrice         string        `yaml:"max_gas_price"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout" default:"10m"`
}

// WalletConfig contains signer settings. The private key itself is never
// stored in the file; it is read from the named environment variable.
type WalletConfig struct {
	PrivateKeyEnv string `yaml:"private_key_env" default:"EARN_BID_PRIVATE_KEY" validate:"required"`
	AutoConnect   bool   `yaml:"auto_connect"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	MetricsPath string `yaml:"metrics_path" default:"/metrics"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// LabelsConfig holds the display strings handed to the host shell.
type LabelsConfig struct {
	SelectWallet    string `yaml:"select_wallet" default:"Select Wallet"`
	ContractDetails string `yaml:"contract_details" default:"Contract Details"`
	CloseDate       string `yaml:"close_date" default:"Close Date"`
	Network         string `yaml:"network" default:"Network"`
	ContractValue   string `yaml:"contract_value" default:"Contract Value"`
	ConnectWallet   string `yaml:"connect_wallet" default:"Connect to Wallet"`
	Approve         string `yaml:"approve" default:"Approve"`
	MakeBid         string `yaml:"make_bid" default:"Make Bid"`
	BidAmount       string `yaml:"bid_amount" default:"Bid Amount"`
}

// DefaultLabels returns the label set with every default applied
func DefaultLabels() LabelsConfig {
	var l LabelsConfig
	_ = defaults.Set(&l)
	return l
}

// Load reads the configuration file at path, fills defaults and validates it
func Load(path string) (*BidderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, fills defaults and validates the result
func Parse(data []byte) (*BidderConfig, error) {
	var cfg BidderConfig
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *BidderConfig) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return err
	}
	if cfg.Ethereum.ConfirmationTimeout <= 0 {
		return fmt.Errorf("ethereum.confirmation_timeout must be positive")
	}
	return nil
}

// PrivateKey returns the wallet private key from the configured environment variable
func (c WalletConfig) PrivateKey() (string, bool) {
	key, ok := os.LookupEnv(c.PrivateKeyEnv)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
