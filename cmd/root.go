// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/gptrelay/internal/config"
	"github.com/xkilldash9x/gptrelay/internal/observability"
)

var (
	cfgFile string
	// loadedConfig is populated by the root PersistentPreRunE and read by the
	// subcommands that need the full configuration.
	loadedConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gptrelay",
	Short: "gptrelay relays chat prompts to ChatGPT through a real browser session.",
	Long: `gptrelay drives a logged-in chatgpt.com tab with a real browser and exposes
it as a small HTTP API: POST /chat submits a prompt and blocks until the
streamed reply has settled. One browser session serves every request.`,
	// Version is set at build time. See cmd/version.go.
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so its values are visible to viper's env bindings, same
		// as the environment the relay was originally deployed with.
		_ = godotenv.Load()

		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Fall back to a console logger so the failure is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gptrelay"})
			return err
		}
		loadedConfig = cfg

		observability.InitializeLogger(cfg.Logger)
		return nil
	},
}

// Execute runs the root command. It is the single entry point used by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "gptrelay %s\n" .Version}}`)
}

// initializeConfig points viper at the config file and environment, leaving
// the defaults in place for everything not set explicitly.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GPTRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}
	return nil
}
