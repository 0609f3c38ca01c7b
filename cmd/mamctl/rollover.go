package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "inspect and drive the daily rollover",
}

var rolloverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "run a rollover check now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Scheduler.CheckAndRun(ctx)
	},
}

var rolloverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show per-job rollover progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.Scheduler.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("boundary: %s\n", status.Boundary)
		if status.TargetDay == "" {
			fmt.Println("up to date")
		} else {
			fmt.Printf("due day: %s\n", status.TargetDay)
		}
		for _, job := range status.Jobs {
			fmt.Printf("  %-12s %-8s last_run=%s\n", job.Name, job.State, job.LastRunDay)
		}
		return nil
	},
}

var rolloverSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "treat the next check as one day later",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Scheduler.SimulateNextDay(ctx)
	},
}

var rolloverResetSimCmd = &cobra.Command{
	Use:   "reset-simulate",
	Short: "clear the simulated day without running a rollover",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Scheduler.ResetSimulatedDay(ctx)
	},
}

func init() {
	rolloverCmd.AddCommand(rolloverRunCmd, rolloverStatusCmd, rolloverSimulateCmd, rolloverResetSimCmd)
	rootCmd.AddCommand(rolloverCmd)
}
