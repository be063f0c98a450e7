package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"clipcast/internal/app"
	"clipcast/internal/config"
	logx "clipcast/pkg/logx"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "clipcast",
		Short:         "Scheduled clip generation and publishing daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A .env next to the binary is optional; the environment wins.
			_ = godotenv.Load()

			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}

			logSvc, log := logx.New(logx.Config{
				Level:   settings.LogLevel,
				Console: settings.LogConsole,
				File: logx.FileConfig{
					Enabled: settings.LogFile,
					Path:    settings.LogFilePath,
				},
			})
			defer logSvc.Close()

			return serve(settings, log)
		},
	}
}

func serve(settings config.Settings, log logx.Logger) error {
	a, err := app.New(settings, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	log.Info("clipcast running", logx.String("version", version))
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyReady)

	<-ctx.Done()
	log.Info("shutdown requested")
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping)

	if err := a.Stop(context.Background()); err != nil {
		log.Error("shutdown finished with errors", logx.Err(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}
