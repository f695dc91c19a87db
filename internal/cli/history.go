package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newShiftsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shifts <extension>",
		Short: "List an agent's shifts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer store.Close()

			shifts, err := store.ListShifts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("listing shifts: %w", err)
			}
			if len(shifts) == 0 {
				color.Yellow("No shifts recorded for %s", args[0])
				return nil
			}

			renderShifts(cmd.OutOrStdout(), newestShifts(shifts, limit))
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Show at most this many shifts (0 for all)")
	return cmd
}

func newQueueStatsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue-stats <queue>",
		Short: "Show a queue's daily statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			for _, d := range []string{from, to} {
				if d == "" {
					continue
				}
				if _, err := time.Parse(types.DateKeyFormat, d); err != nil {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
				}
			}

			store, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListQueueStats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("listing queue stats: %w", err)
			}

			records = statsBetween(records, from, to)
			if len(records) == 0 {
				color.Yellow("No statistics for queue %s", args[0])
				return nil
			}

			renderQueueStats(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().String("from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to include (YYYY-MM-DD)")
	return cmd
}

func newAgentsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List persisted agent identities with their counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer store.Close()

			agents, err := store.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}
			sort.Slice(agents, func(i, j int) bool { return agents[i].Extension < agents[j].Extension })

			renderAgentRecords(cmd.OutOrStdout(), agents)
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d agents\n", len(agents))
			return nil
		},
	}
}

func newestShifts(shifts []types.ShiftRecord, limit int) []types.ShiftRecord {
	sort.Slice(shifts, func(i, j int) bool {
		return shifts[i].StartTime.After(shifts[j].StartTime)
	})
	if limit > 0 && len(shifts) > limit {
		shifts = shifts[:limit]
	}
	return shifts
}

// statsBetween keeps records within [from, to], oldest first. Empty bounds are open.
func statsBetween(records []types.QueueStats, from, to string) []types.QueueStats {
	out := make([]types.QueueStats, 0, len(records))
	for _, r := range records {
		if from != "" && r.Date < from {
			continue
		}
		if to != "" && r.Date > to {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
