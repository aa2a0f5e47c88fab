package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartcare/schedd/internal/config"
	"github.com/smartcare/schedd/internal/control"
	"github.com/smartcare/schedd/internal/logging"
	"github.com/smartcare/schedd/internal/postgres"
	"github.com/smartcare/schedd/internal/schedule"
	"github.com/smartcare/schedd/internal/sender"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler engine",
	Long: `Start the poll-and-dispatch loop against the configured job store.

The engine never creates or alters the schedule_jobs table; it expects the
admin application to own the schema.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("config", "", "Path to schedd.toml config file")
	startCmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	startCmd.Flags().Int("poll-interval", 0, "Poll interval in seconds")
	startCmd.Flags().Int("control-port", 0, "Control API port")
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, created, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flag overrides win over file and env.
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		cfg.Database.URL = v
	}
	if v, _ := cmd.Flags().GetInt("poll-interval"); v > 0 {
		cfg.Scheduler.PollIntervalSec = v
	}
	if v, _ := cmd.Flags().GetInt("control-port"); v > 0 {
		cfg.Scheduler.ControlPort = v
	}

	logger, logPath := logging.New(logging.Config{LogFile: cfg.Scheduler.LogFile})
	if created {
		logger.Warn("no config file found, wrote defaults", "path", config.DefaultPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.New(ctx, postgres.Config{
		URL:             cfg.DatabaseURL(),
		MaxConns:        int32(cfg.Database.PoolSize),
		SessionTimeZone: cfg.Scheduler.SessionTimeZone,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to job store: %w", err)
	}
	defer pool.Close()

	store := schedule.NewStore(pool.DB())

	httpSender := sender.NewHTTP(sender.HTTPConfig{
		UserAgent: cfg.HTTP.UserAgent,
		VerifyTLS: cfg.HTTP.VerifyTLS,
	}, logger)

	var mqttSender *sender.MQTTSender
	var emailSender *sender.EmailSender
	multi := sender.NewMulti(httpSender, nil, nil)
	if cfg.MQTT.Host != "" {
		mqttSender = sender.NewMQTT(sender.MQTTConfig{
			Host:           cfg.MQTT.Host,
			Port:           cfg.MQTT.Port,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ClientIDPrefix: cfg.MQTT.ClientIDPrefix,
			Keepalive:      cfg.MQTT.Keepalive,
			TLS:            cfg.MQTT.TLS,
		}, logger)
		defer mqttSender.Close()
	}
	if cfg.SMTP.Host != "" {
		emailSender = sender.NewEmail(sender.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		}, logger)
	}
	switch {
	case mqttSender != nil && emailSender != nil:
		multi = sender.NewMulti(httpSender, mqttSender, emailSender)
	case mqttSender != nil:
		multi = sender.NewMulti(httpSender, mqttSender, nil)
	case emailSender != nil:
		multi = sender.NewMulti(httpSender, nil, emailSender)
	}

	svc := schedule.NewService(store, multi, logger, schedule.ServiceConfig{
		PollInterval:    time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second,
		Batch:           cfg.Scheduler.Batch,
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
	})
	svc.Start(ctx)

	var ctrl *control.Server
	if cfg.Scheduler.ControlEnabled {
		ctrl = control.New(control.Config{
			Host:  cfg.Scheduler.ControlHost,
			Port:  cfg.Scheduler.ControlPort,
			Token: cfg.Scheduler.ControlToken,
		}, svc, logger)
		if err := ctrl.Start(); err != nil {
			svc.Stop()
			return fmt.Errorf("starting control server: %w", err)
		}
	}

	printBanner(cfg, logPath, ctrl)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if ctrl != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ctrl.Shutdown(shutCtx); err != nil {
			logger.Error("control server shutdown failed", "error", err)
		}
		cancel()
	}
	svc.Stop()
	return nil
}

func printBanner(cfg *config.Config, logPath string, ctrl *control.Server) {
	fmt.Fprintf(os.Stdout, "schedd %s\n", buildVersion)
	fmt.Fprintf(os.Stdout, "  Store:    %s\n", redactURL(cfg.DatabaseURL()))
	fmt.Fprintf(os.Stdout, "  Log file: %s\n", logPath)
	if ctrl != nil {
		fmt.Fprintf(os.Stdout, "  Control:  http://%s\n", ctrl.Addr())
	} else {
		fmt.Fprintln(os.Stdout, "  Control:  disabled")
	}
	fmt.Fprintf(os.Stdout, "  Poll:     every %ds, batch %d, default zone %s\n",
		cfg.Scheduler.PollIntervalSec, cfg.Scheduler.Batch, cfg.Scheduler.DefaultTimezone)
}

// redactURL strips the password from a connection URL for display.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
