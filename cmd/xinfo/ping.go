package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure request round-trip time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 5, "Number of round trips")

	return cmd
}

func runPing(count int) error {
	if count < 1 {
		count = 1
	}
	conn, ctx, cancel, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	var total, min, max time.Duration
	for i := 0; i < count; i++ {
		start := time.Now()
		if err := conn.Sync(ctx); err != nil {
			return err
		}
		elapsed := time.Since(start)

		total += elapsed
		if i == 0 || elapsed < min {
			min = elapsed
		}
		if elapsed > max {
			max = elapsed
		}
		fmt.Printf("round trip %d: %s\n", i+1, elapsed)
	}
	fmt.Printf("min/avg/max: %s / %s / %s\n", min, total/time.Duration(count), max)
	return nil
}
