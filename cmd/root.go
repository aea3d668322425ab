// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloudsim/cloudsim/sim"
)

var (
	scenarioPath string
	duration     int64
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "cloudsim",
	Short: "Discrete-event simulator for cloud data centers",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario file through the simulator",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := sim.LoadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("Loading scenario: %v", err)
		}
		s, err := cfg.Build()
		if err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
		if err := s.Run(duration); err != nil {
			logrus.Fatalf("Simulation aborted: %v", err)
		}
		s.Report(true)
		logrus.Info("Simulation complete.")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file")
	runCmd.Flags().Int64Var(&duration, "duration", 0, "Ticks to simulate; 0 runs until the scenario drains")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	_ = runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
}
