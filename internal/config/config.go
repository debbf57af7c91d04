package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Chain  ChainConfig
	Vault  VaultConfig
	Server ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL      string `mapstructure:"rpc_url"`
	TreasuryKey string `mapstructure:"treasury_key"`
	ChainID     int64  `mapstructure:"chain_id"`
}

type VaultConfig struct {
	OwnerAddress   string `mapstructure:"owner_address"`
	SignerAddress  string `mapstructure:"signer_address"`
	AllowContracts bool   `mapstructure:"allow_contracts"`
	DepositPollSec int64  `mapstructure:"deposit_poll_sec"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("vault.allow_contracts", false)
	v.SetDefault("vault.deposit_poll_sec", 30)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":             "REDIS_ADDR",
		"redis.password":         "REDIS_PASSWORD",
		"chain.rpc_url":          "RPC_URL",
		"chain.treasury_key":     "TREASURY_KEY",
		"chain.chain_id":         "CHAIN_ID",
		"vault.owner_address":    "OWNER_ADDRESS",
		"vault.signer_address":   "SIGNER_ADDRESS",
		"vault.allow_contracts":  "ALLOW_CONTRACTS",
		"vault.deposit_poll_sec": "DEPOSIT_POLL_SEC",
		"server.port":            "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.TreasuryKey, "TREASURY_KEY"},
		{c.Vault.OwnerAddress, "OWNER_ADDRESS"},
		{c.Vault.SignerAddress, "SIGNER_ADDRESS"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
