package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benaskins/joule/internal/config"
	"github.com/benaskins/joule/internal/power"
	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Take a one-shot power reading without the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		cfg, err := config.Load(resolvedConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		adapter := power.NewAdapter(cfg.CPUTDPW)
		defer adapter.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		// The first CPU read only primes the utilization counters.
		adapter.Read(ctx)
		time.Sleep(500 * time.Millisecond)
		r, err := adapter.Read(ctx)
		if err != nil && !errors.Is(err, power.ErrNoGPU) {
			fmt.Printf("warning: %v\n", err)
		}

		if jsonOut {
			return printJSON(r)
		}

		fmt.Printf("CPU utilization:  %.1f%%\n", r.CPUUtilization)
		fmt.Printf("CPU power:        %.2f W (TDP %.0f W)\n", r.CPUW, cfg.CPUTDPW)
		if r.GPUAvailable {
			fmt.Printf("GPU power:        %.2f W\n", r.GPUW)
		} else {
			fmt.Printf("GPU power:        unavailable\n")
		}
		return nil
	},
}

func init() {
	powerCmd.Flags().Bool("json", false, "Print raw JSON")
	rootCmd.AddCommand(powerCmd)
}
