package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/quizmaster-backend/internal/logger"
)

var (
	serverURL string
	email     string
	token     string
	logLevel  string

	log = zerolog.Nop()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	envServer := os.Getenv("QUIZ_SERVER")
	if envServer == "" {
		envServer = "http://localhost:5000"
	}

	cmd := &cobra.Command{
		Use:           "quiz-cli",
		Short:         "Take the timed quiz from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logger.SetupWriter(os.Stderr, logLevel, "pretty").With().Str("component", "quiz_cli").Logger()
		},
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", envServer, "quiz server base URL")
	cmd.PersistentFlags().StringVar(&email, "email", "", "email to start with (prompted when empty)")
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("QUIZ_TOKEN"), "reuse an issued token instead of starting")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	cmd.AddCommand(newPlayCmd())
	cmd.AddCommand(newAttemptsCmd())
	return cmd
}
