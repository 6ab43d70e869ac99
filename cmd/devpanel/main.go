package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bhandras/devpanel/internal/config"
	"github.com/bhandras/devpanel/pkg/logger"
)

var version = "dev"

var (
	cfgFile string
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "devpanel",
	Short: "devpanel - observe and query running player runtimes",
	Long: `devpanel connects to a devtools relay, tracks every runtime instance
that announces itself, mirrors the selected plugin's flow and forwards
inspection requests (state, config, bindings, expressions, profiler).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(kindsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.devpanel/config.yaml)")
	flags.String("server", "", "devtools relay URL")
	flags.String("transport", "", "transport to use (socketio|websocket)")
	flags.String("token", "", "bearer token sent on connect")
	flags.String("secret", "", "base64 32-byte key for sealed payloads")
	flags.String("log-level", "", "log level (trace|debug|info|warn|error)")
	flags.StringVarP(&output, "output", "o", "json", "output format (json|yaml)")

	viper.BindPFlag(config.KeyServerURL, flags.Lookup("server"))
	viper.BindPFlag(config.KeyTransport, flags.Lookup("transport"))
	viper.BindPFlag(config.KeyToken, flags.Lookup("token"))
	viper.BindPFlag(config.KeySecret, flags.Lookup("secret"))
	viper.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig loads the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Debugf("Config: ServerURL=%s, Transport=%s, Home=%s, Sealed=%v",
		cfg.ServerURL, cfg.Transport, cfg.Home, cfg.Sealed())
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the devpanel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "devpanel %s\n", version)
	},
}
