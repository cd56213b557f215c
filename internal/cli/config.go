package cli

import (
	"io/fs"
	"strings"

	cerr "github.com/cockroachdb/errors"
	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newViper returns a viper instance with defaults and environment lookup.
// TROUBLESHOOTER_AGENT_MAX_ITERATIONS overrides agent.max_iterations.
func newViper() *viper.Viper {
	v := viper.New()
	config.SetViperDefaults(v)

	v.SetConfigName(config.ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("planner.api_key", config.EnvPrefix+"_PLANNER_API_KEY", "OPENAI_API_KEY")
	return v
}

// initConfig loads .env and the config file if present. A missing default
// config file is fine; a missing explicit one is a usage error.
func (rt *runtime) initConfig(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !cerr.Is(err, fs.ErrNotExist) {
		return cerr.Mark(cerr.Wrap(err, "cannot load .env"), ierrors.ErrConfig)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		rt.v.SetConfigFile(path)
	}
	if err := rt.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cerr.As(err, &notFound) {
			return nil
		}
		return cerr.Mark(cerr.Wrap(err, "cannot read config file"), ierrors.ErrConfig)
	}
	return nil
}

// buildConfig constructs a config.Config from viper values
func (rt *runtime) buildConfig() (*config.Config, error) {
	cfg, err := config.Load(rt.v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
