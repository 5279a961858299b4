package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/sundayezeilo/linkservice/internal/app"
	"github.com/sundayezeilo/linkservice/internal/config"
)

const appName = "linksvc"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Bookmark CRUD service",
		Long: `linksvc serves create, read, update and delete operations on link
records. Without a subcommand it runs as an AWS Lambda handler behind
API Gateway.`,
		SilenceUsage: true,
		RunE:         runLambda,
	}

	root.AddCommand(
		newLambdaCmd(),
		newServeCmd(),
		newCreateTableCmd(),
	)
	return root
}

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda handler (default)",
		Args:  cobra.NoArgs,
		RunE:  runLambda,
	}
}

// runLambda wires the app once per cold start and hands the dispatcher to the
// Lambda runtime, which never returns.
func runLambda(cmd *cobra.Command, _ []string) error {
	a, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	lambda.Start(a.Router.Dispatch)
	return nil
}

func newServeCmd() *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API over local HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			serverCfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			return a.Serve(ctx, serverCfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides SERVER_HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides SERVER_PORT)")
	return cmd
}

func newCreateTableCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "create-table",
		Short: "Create the links table for the dynamodb or postgres backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait+10*time.Second)
			defer cancel()

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if err := a.EnsureTable(ctx, wait); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "table ready")
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long to wait for the table to become active")
	return cmd
}
