package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration tree as loaded from TOML.
type Config struct {
	Node      Node      `toml:"node"`
	Protocol  Protocol  `toml:"protocol"`
	Fees      Fees      `toml:"fees"`
	Tokens    Tokens    `toml:"tokens"`
	Oracle    Oracle    `toml:"oracle"`
	Auth      Auth      `toml:"auth"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet. Unknown keys are rejected so typos fail at boot
// instead of silently falling back to defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}

	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration written on first boot.
func Default() Config {
	return Config{
		Node: Node{
			RPCAddress:  ":8645",
			DataDir:     "./prism-data",
			NetworkName: "prism-local",
			LogLevel:    "info",
			LogEnv:      "dev",
		},
		Protocol: Protocol{
			StabilityRatio:        "1.3",
			LiquidationRatio:      "1.2",
			SelfLiquidationRatio:  "1.14",
			RecapRatio:            "1",
			LiquidationIncentive:  "0.05",
			InitialMintRatio:      "0.9",
			Beta:                  "0",
			BaseTokenCap:          "1000000",
			EMASampleIntervalSecs: 1800,
		},
		Fees: Fees{
			FractionalMint:   FeePair{Default: "0.0025", Extra: "0.01"},
			LeveragedMint:    FeePair{Default: "0.01", Extra: "-0.01"},
			FractionalRedeem: FeePair{Default: "0.0025", Extra: "-0.0025"},
			LeveragedRedeem:  FeePair{Default: "0.01", Extra: "0.07"},
		},
		Tokens: Tokens{
			Base:       "BASE",
			Fractional: "prUSD",
			Leveraged:  "prX",
		},
		Oracle: Oracle{
			Priority:        []string{"manual"},
			MaxQuoteAgeSecs: 300,
			MaxDeviationBps: 1000,
		},
		Auth: Auth{
			JWTSecretEnv: "PRISM_JWT_SECRET",
			TokenTTLSecs: 300,
		},
		RPC: RPC{
			RequestsPerMinute:   600,
			Burst:               30,
			QuotaRequestsPerMin: 120,
			QuotaEpochSecs:      3600,
			ReadTimeoutSecs:     15,
			WriteTimeoutSecs:    15,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
