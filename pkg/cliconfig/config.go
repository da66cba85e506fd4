// Package cliconfig reads the Solana CLI configuration file.
package cliconfig

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

const (
	DefaultRPCURL = string(solana.EnvironmentLocal)
)

var (
	ErrConfigUnavailable = errors.New("solana cli config unavailable")
)

// Config is the subset of the Solana CLI configuration used when talking to a
// cluster.
type Config struct {
	JSONRPCURL   string `mapstructure:"json_rpc_url"`
	WebsocketURL string `mapstructure:"websocket_url"`
	KeypairPath  string `mapstructure:"keypair_path"`
	Commitment   string `mapstructure:"commitment"`
}

// RPCURL returns the configured JSON-RPC endpoint, or the local validator
// endpoint when none is set.
func (c Config) RPCURL() string {
	if len(c.JSONRPCURL) == 0 {
		return DefaultRPCURL
	}
	return c.JSONRPCURL
}

// Result is the outcome of loading a config file. When the file could not be
// used, Config holds defaults and Fallback describes why.
type Result struct {
	Config   Config
	Fallback error
}

// DefaultPath is the location the Solana CLI writes its config to.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return filepath.Join(home, ".config", "solana", "cli", "config.yml")
}

// Load reads the config file at path. It never fails outright: a missing or
// unparseable file yields a Result whose Fallback wraps ErrConfigUnavailable.
func Load(path string) Result {
	if len(path) == 0 {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Result{
			Fallback: errors.Wrapf(ErrConfigUnavailable, "%s: %v", path, err),
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Result{
			Fallback: errors.Wrapf(ErrConfigUnavailable, "%s: %v", path, err),
		}
	}

	config.KeypairPath = expandHome(config.KeypairPath)

	return Result{Config: config}
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
