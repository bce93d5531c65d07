package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adrata/intel-engine/internal/model"
)

var (
	queueTop        int
	prospectsWindow time.Duration
)

var queueCmd = &cobra.Command{
	Use:   "queue <workspace-id>",
	Short: "Show the priority queue of top-ranked people across the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSubset(cmd, func(env *engineEnv) ([]model.QueueEntry, error) {
			return env.Engine.PriorityQueue(cmd.Context(), args[0], queueTop)
		})
	},
}

var leadsCmd = &cobra.Command{
	Use:   "leads <workspace-id>",
	Short: "Show high-influence buyer-group members in hierarchy order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSubset(cmd, func(env *engineEnv) ([]model.QueueEntry, error) {
			return env.Engine.QualifiedLeads(cmd.Context(), args[0])
		})
	},
}

var prospectsCmd = &cobra.Command{
	Use:   "prospects <workspace-id>",
	Short: "Show buyer-group members engaged within the window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSubset(cmd, func(env *engineEnv) ([]model.QueueEntry, error) {
			return env.Engine.ActiveProspects(cmd.Context(), args[0], prospectsWindow)
		})
	},
}

// withSubset wraps the shared setup and JSON output of the subset commands.
func withSubset(cmd *cobra.Command, fn func(*engineEnv) ([]model.QueueEntry, error)) error {
	env, err := initEngine(cmd.Context(), "store")
	if err != nil {
		return err
	}
	defer env.Close()

	entries, err := fn(env)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func init() {
	queueCmd.Flags().IntVar(&queueTop, "top", 25, "number of people to return")
	prospectsCmd.Flags().DurationVar(&prospectsWindow, "window", 7*24*time.Hour, "engagement recency window")
	rootCmd.AddCommand(queueCmd, leadsCmd, prospectsCmd)
}
