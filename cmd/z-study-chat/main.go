package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hola0123/z-study-chat/pkg/api"
)

var rootCmd = &cobra.Command{
	Use:   "z-study-chat",
	Short: "Terminal client for the z-study chat backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().String("base-url", "http://localhost:3000/api/v1", "Backend base URL")
	rootCmd.PersistentFlags().String("token", "", "Bearer token")
	rootCmd.PersistentFlags().String("model", "gpt-4o-mini", "Model to request completions from")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("ZSTUDY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConversationsCommand())
}

func initLogging() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	writer := os.Stderr
	if isatty.IsTerminal(writer.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: writer})
	}
	return nil
}

func newClient() *api.Client {
	return api.NewClient(
		viper.GetString("base-url"),
		api.WithToken(viper.GetString("token")),
		api.WithLogger(log.Logger),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
