package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidetone/loopback-sdk-go/pkg/loopback"
)

var (
	verbose       bool
	inputDevice   int
	outputDevice  int
	sampleRate    int
	latencyMs     float64
	periodFrames  int
	tapPath       string
	monitorAddr   string
	statsInterval float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loopback",
		Short: "Low-latency audio loopback",
		Long:  "Capture the microphone and play it straight back with minimal delay",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		loopback.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func buildConfig() *loopback.Config {
	cfg := loopback.NewConfig()
	if verbose {
		cfg.DebugLevel = "DEBUG"
	}
	if inputDevice >= 0 {
		id := inputDevice
		cfg.InputDeviceID = &id
	}
	if outputDevice >= 0 {
		id := outputDevice
		cfg.OutputDeviceID = &id
	}
	if sampleRate > 0 {
		cfg.SampleRate = sampleRate
	}
	if latencyMs > 0 {
		cfg.TargetLatencyMs = latencyMs
	}
	if periodFrames > 0 {
		cfg.PeriodFrames = periodFrames
	}
	if tapPath != "" {
		cfg.TapPath = tapPath
	}
	if monitorAddr != "" {
		cfg.MonitorAddr = monitorAddr
	}
	return cfg
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the loopback until interrupted",
		Long:  "Open the capture and playback devices and loop audio between them until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := buildConfig()
			loopback.SetGlobalLogger(loopback.NewLogger(&loopback.LogConfig{
				Level:  cfg.DebugLevel,
				Pretty: true,
				Output: os.Stderr,
			}))
			log := loopback.GetGlobalLogger().WithComponent("cli")

			if issues := cfg.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					log.Error(issue)
				}
				return fmt.Errorf("invalid configuration")
			}

			engine := loopback.NewEngine(cfg, loopback.NewPortAudioPort(cfg))

			var monitor *loopback.Monitor
			if cfg.MonitorAddr != "" {
				monitor = loopback.NewMonitor(engine, cfg.MonitorAddr, 0)
				go func() {
					if err := monitor.ListenAndServe(); err != nil {
						log.WithError(err).Error("Monitor stopped")
					}
				}()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := engine.Start(); err != nil {
				return err
			}

			fmt.Println("Running... speak into the mic; you should hear yourself.")
			fmt.Println("Press Ctrl+C to exit.")

			ticker := time.NewTicker(time.Duration(statsInterval * float64(time.Second)))
			defer ticker.Stop()

		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-ticker.C:
					log.LogSnapshot(engine.Snapshot())
				}
			}

			engine.Stop()
			if monitor != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := monitor.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Warn("Monitor shutdown failed")
				}
			}

			snap := engine.Snapshot()
			fmt.Printf("\n=== Session Statistics ===\n")
			fmt.Printf("Frames Captured: %d\n", snap.Counters.FramesCaptured)
			fmt.Printf("Frames Played: %d\n", snap.Counters.FramesPlayed)
			fmt.Printf("Overruns: %d\n", snap.Counters.Overruns)
			fmt.Printf("Underruns: %d\n", snap.Counters.Underruns)
			fmt.Printf("Transient Errors: %d\n", snap.Counters.Transients)
			return nil
		},
	}

	cmd.Flags().IntVarP(&inputDevice, "input", "i", -1, "Input device ID (default device if unset)")
	cmd.Flags().IntVarP(&outputDevice, "output", "o", -1, "Output device ID (default device if unset)")
	cmd.Flags().IntVarP(&sampleRate, "rate", "r", 0, "Sample rate in Hz")
	cmd.Flags().Float64VarP(&latencyMs, "latency", "l", 0, "Target latency in milliseconds")
	cmd.Flags().IntVarP(&periodFrames, "period", "p", 0, "Frames per device callback")
	cmd.Flags().StringVar(&tapPath, "tap", "", "Record the played signal to this WAV file")
	cmd.Flags().StringVar(&monitorAddr, "monitor", "", "Serve live diagnostics on this address (e.g. :8089)")
	cmd.Flags().Float64Var(&statsInterval, "stats-interval", 10.0, "Seconds between snapshot log lines")
	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := loopback.ListDevices()
			if err != nil {
				return err
			}

			fmt.Println("Available Audio Devices:")
			for _, device := range devices {
				marker := ""
				if device.IsDefaultInput {
					marker += " (Default Input)"
				}
				if device.IsDefaultOutput {
					marker += " (Default Output)"
				}

				capabilities := "None"
				switch {
				case device.IsInput() && device.IsOutput():
					capabilities = "Input/Output"
				case device.IsInput():
					capabilities = "Input"
				case device.IsOutput():
					capabilities = "Output"
				}

				fmt.Printf("  %d: %s%s - %s (%.0f Hz, %s)\n",
					device.ID, device.Name, marker, capabilities,
					device.DefaultSampleRate, device.HostAPI)
			}
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loopback.NewConfig()
			cfg.PrintConfig()

			if issues := cfg.Validate(); len(issues) > 0 {
				fmt.Println("\nIssues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
		},
	})

	return cmd
}
