/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getactive/apiserver/config"
	"github.com/getactive/apiserver/internal/logging"
	"github.com/getactive/apiserver/internal/mail"
	"github.com/getactive/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// mailWorkerCmd consumes verification mail from a networked broker.
var mailWorkerCmd = &cobra.Command{
	Use:   "mail-worker",
	Short: "Delivers verification mail published by the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("failed to open mq: %w", err)
		}
		defer broker.Close()

		if broker.Inline() {
			return errors.New("mail-worker needs MQ_BACKEND=rabbitmq or pubsub; the inline broker is consumed by the server itself")
		}

		logger.WithField("backend", broker.Name()).Info("connected to mq")

		worker := mail.NewWorker(broker, mail.NewMailer(cfg.Mail.SMTP, logger), cfg.Mail, logger)
		return worker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mailWorkerCmd)
}
