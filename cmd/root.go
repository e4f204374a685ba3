package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RogWilco/jacob/cmd/server"
	"github.com/RogWilco/jacob/cmd/todo"
	"github.com/RogWilco/jacob/pkg/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jacob",
	Short: "Turn tracked issues into researched, planned todos",
	Long: `jacob watches GitHub issues and turns each one into a todo with
research notes, an implementation plan and an effort evaluation.

This tool provides:
- A REST API over todos, research and plans
- A CLI for creating, importing and exporting todos
- A background queue for batch issue imports`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jacob.yaml)")
	rootCmd.PersistentFlags().String(config.KeyDBPath, "jacob.db", "SQLite database path")
	rootCmd.PersistentFlags().String(config.KeyProvider, "openai", "LLM provider (openai, anthropic)")
	rootCmd.PersistentFlags().String(config.KeyModel, "", "model id (defaults to the provider's primary model)")
	rootCmd.PersistentFlags().Bool(config.KeyDebug, false, "enable debug logging")
	rootCmd.PersistentFlags().String(config.KeySnapshotDir, "", "directory for repository snapshots (default: system temp)")
	rootCmd.PersistentFlags().String(config.KeyAppURL, "https://app.jacb.ai", "dashboard base URL used in board links")

	// Logging flags
	rootCmd.PersistentFlags().String(config.KeyLogFile, "", "log file path (optional)")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "text", "log format (text, json)")

	for _, key := range []string{
		config.KeyDBPath, config.KeyProvider, config.KeyModel, config.KeyDebug,
		config.KeySnapshotDir, config.KeyAppURL,
		config.KeyLogFile, config.KeyLogLevel, config.KeyLogFormat,
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}

	rootCmd.AddCommand(server.ServerCmd)
	rootCmd.AddCommand(todo.TodoCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".jacob")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv(config.KeyOpenAIKey, "OPENAI_API_KEY")
	_ = viper.BindEnv(config.KeyAnthropicKey, "ANTHROPIC_API_KEY")
	_ = viper.BindEnv(config.KeyGitHubToken, "GITHUB_TOKEN")
	_ = viper.BindEnv(config.KeyDBPath, "JACOB_DB_PATH")
	_ = viper.BindEnv(config.KeyJiraAPIBase, "JIRA_API_BASE")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
