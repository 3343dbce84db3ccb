package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/healthstore/internal/healthstore"
	"github.com/roach88/healthstore/internal/provider"
	"github.com/roach88/healthstore/internal/server"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "HEALTHSTORE"
	homeConfigDir  = ".healthstore"
)

// Config keys.
const (
	cfgKeyDataDir    = "data_dir"
	cfgKeyAuthority  = "authority"
	cfgKeyOwner      = "owner"
	cfgKeyListen     = "listen"
	cfgKeyPolicyFile = "policy_file"
	cfgKeyLogLevel   = "log_level"
	cfgKeyOwnerToken = "owner_token"
)

// Settings is the resolved configuration.
type Settings struct {
	DataDir    string
	Authority  string
	Owner      string
	Listen     string
	PolicyFile string
	LogLevel   slog.Level

	// OwnerToken authorizes HTTP requests acting as Owner.
	OwnerToken string
}

// loadConfig reads config.yaml from configDir, or from $HOME/.healthstore
// and the working directory when configDir is empty. A missing file is not
// an error. Environment variables use the HEALTHSTORE_ prefix; flags bound
// from fs win over both.
func loadConfig(configDir string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDataDir, defaultDataDir())
	v.SetDefault(cfgKeyAuthority, provider.DefaultAuthority)
	v.SetDefault(cfgKeyOwner, healthstore.DefaultOwner)
	v.SetDefault(cfgKeyListen, server.DefaultListen)
	v.SetDefault(cfgKeyLogLevel, "info")

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, homeConfigDir))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("data-dir"); f != nil {
			if err := v.BindPFlag(cfgKeyDataDir, f); err != nil {
				return nil, fmt.Errorf("bind flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, homeConfigDir, "data")
	}
	return filepath.Join(".", homeConfigDir, "data")
}

// settingsFrom resolves Settings from v.
func settingsFrom(v *viper.Viper) (Settings, error) {
	s := Settings{
		DataDir:    v.GetString(cfgKeyDataDir),
		Authority:  v.GetString(cfgKeyAuthority),
		Owner:      v.GetString(cfgKeyOwner),
		Listen:     v.GetString(cfgKeyListen),
		PolicyFile: v.GetString(cfgKeyPolicyFile),
		OwnerToken: v.GetString(cfgKeyOwnerToken),
	}
	if err := s.LogLevel.UnmarshalText([]byte(v.GetString(cfgKeyLogLevel))); err != nil {
		return s, fmt.Errorf("invalid %s: %w", cfgKeyLogLevel, err)
	}
	return s, nil
}

// openStore opens the configured store.
func (opts *RootOptions) openStore(ctx context.Context) (*healthstore.HealthStore, error) {
	hs, err := healthstore.Open(ctx, healthstore.Config{
		DataDir:    opts.Settings.DataDir,
		Authority:  opts.Settings.Authority,
		Owner:      opts.Settings.Owner,
		PolicyFile: opts.Settings.PolicyFile,
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return hs, nil
}
