package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/connection"
	"github.com/cuemby/sitekeeper/pkg/coordinator"
	"github.com/cuemby/sitekeeper/pkg/dispatcher"
	"github.com/cuemby/sitekeeper/pkg/handlers"
	"github.com/cuemby/sitekeeper/pkg/health"
	"github.com/cuemby/sitekeeper/pkg/idtranslator"
	"github.com/cuemby/sitekeeper/pkg/journal"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/notify"
	"github.com/cuemby/sitekeeper/pkg/restapi"
	"github.com/cuemby/sitekeeper/pkg/transport"
	"github.com/cuemby/sitekeeper/pkg/workflow"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitekeeper-master",
	Short: "SiteKeeper Master: orchestrates site-management actions across slave agents",
	Long: `sitekeeper-master runs the control plane's Coordinator, Dispatcher,
Journal, and Transport server, and exposes the §6 HTTP/REST surface for
the operator UI.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sitekeeper-master version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Master process",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		j, err := journal.New(cfg)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()

		var sweeper *journal.RetentionSweeper
		if cfg.JournalRetention > 0 {
			sweeper, err = journal.NewRetentionSweeper(j, cfg.JournalRetentionSchedule, cfg.JournalRetention)
			if err != nil {
				return fmt.Errorf("start retention sweeper: %w", err)
			}
			sweeper.Start()
			defer sweeper.Stop()
		}

		notifier := notify.NewBroker()
		notifier.Start()
		defer notifier.Stop()

		healthMon := health.NewMonitor(cfg, notifier)
		healthMon.Start()
		defer healthMon.Stop()

		translator := idtranslator.New(j, cfg.ActionIDGrace())
		translator.Start()
		defer translator.Stop()

		connMgr := connection.NewManager(healthMon, translator, notifier)
		disp := dispatcher.New(connMgr, healthMon, cfg)
		translator.SetRouter(disp)
		defer disp.Stop()

		deps := workflow.Dependencies{
			Journal:    j,
			Dispatcher: disp,
			Translator: translator,
			Conn:       connMgr,
			Notifier:   notifier,
			Config:     cfg,
		}
		coord := coordinator.New([]coordinator.ActionHandler{
			handlers.EnvVerify{},
			handlers.OrchestrationTest{},
		}, nil, deps, cfg)

		transportSrv := transport.NewServer(connMgr)
		lis, err := net.Listen("tcp", cfg.ListenAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
		}
		go func() {
			if err := transportSrv.Serve(lis); err != nil {
				log.Logger.Error().Err(err).Msg("transport server stopped")
			}
		}()
		defer transportSrv.Stop()

		httpSrv := restapi.NewServer(coord, j)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		httpDone := make(chan error, 1)
		go func() { httpDone <- httpSrv.ListenAndServe(ctx, cfg.HTTPAddress) }()

		log.Logger.Info().
			Str("listen_address", cfg.ListenAddress).
			Str("http_address", cfg.HTTPAddress).
			Str("environment", cfg.EnvironmentName).
			Msg("sitekeeper-master started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case err := <-httpDone:
			if err != nil {
				log.Logger.Error().Err(err).Msg("http server stopped")
			}
		}

		log.Logger.Info().Msg("shutting down")
		cancel()
		<-httpDone
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to YAML configuration file")
}
