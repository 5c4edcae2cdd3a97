package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"axiom/config"
	"axiom/setup"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(discordCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	for _, c := range []*cobra.Command{logCmd, summarizeCmd, browseCmd} {
		c.Flags().IntP("count", "n", 20, "Number of exchanges to read")
		c.Flags().String("guild", "", "Only read exchanges from this guild ID")
	}

	rootCmd.PersistentFlags().String("discord-token", "", "Discord bot token")
	rootCmd.PersistentFlags().String("groq-api-key", "", "Groq API key")
	rootCmd.PersistentFlags().
		String("elevenlabs-api-key", "", "ElevenLabs API key")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres URL")
	rootCmd.PersistentFlags().String("ocr-api-key", "", "OCR.space API key")
	rootCmd.PersistentFlags().Int("port", 3000, "HTTP server port")

	viper.BindPFlag(
		"discord_token",
		rootCmd.PersistentFlags().Lookup("discord-token"),
	)
	viper.BindPFlag(
		"groq_api_key",
		rootCmd.PersistentFlags().Lookup("groq-api-key"),
	)
	viper.BindPFlag(
		"elevenlabs_api_key",
		rootCmd.PersistentFlags().Lookup("elevenlabs-api-key"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
	viper.BindPFlag(
		"ocr_api_key",
		rootCmd.PersistentFlags().Lookup("ocr-api-key"),
	)
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
}

func initConfig() {
	logger = log.New(os.Stderr)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		logger.Warn("error reading config file", "error", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "axiom",
	Short: "Axiom is a Discord assistant you can talk to",
	Long: `Axiom answers questions in Discord text channels and, once invited
into a voice channel, listens for "hey axiom" and answers out loud.`,
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Start the Discord bot",
	Run:   runDiscord,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write config.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setup.RunSetup(); err != nil {
			logger.Fatal("setup", "error", err)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func createLoggers() (mainLogger, chatLogger, hearLogger, talkLogger, dataLogger *log.Logger) {
	logLevel, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		logLevel = log.DebugLevel
	}

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	for _, level := range []log.Level{log.InfoLevel, log.WarnLevel, log.ErrorLevel} {
		styles.Levels[level] = styles.Levels[level].
			MaxWidth(6).
			MarginRight(1).
			Bold(false)
	}
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#00d4ff"))

	logger.SetStyles(styles)

	mainLogger = logger.WithPrefix("main")
	chatLogger = logger.WithPrefix("chat")
	hearLogger = logger.WithPrefix("hear")
	talkLogger = logger.WithPrefix("talk")
	dataLogger = logger.WithPrefix("data")

	return
}
