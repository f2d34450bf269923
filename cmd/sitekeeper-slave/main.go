package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/handlers"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/slave"
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
	Use:   "sitekeeper-slave",
	Short: "SiteKeeper Slave: a node agent that registers with the Master and executes tasks",
	Long: `sitekeeper-slave dials the Master, registers this node, sends
heartbeats, and executes whatever tasks the Master dispatches, per the
TaskType executors this binary links in.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sitekeeper-slave version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

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
	Short: "Run the Slave agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.LoadSlave(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.AgentVersion = Version

		registry := slave.Registry{
			handlers.VerifyConfiguration:     slave.VerifyConfigExecutor{},
			handlers.OrchestrationSimulation: slave.NewSimulationExecutor(),
		}
		agent := slave.New(cfg, registry)

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Logger.Info().Msg("shutting down")
			cancel()
		}()

		log.Logger.Info().
			Str("node_name", cfg.NodeName).
			Str("master_address", cfg.MasterAddress).
			Msg("sitekeeper-slave started")

		if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("agent run: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to YAML configuration file")
}
