package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/store"
)

var (
	runsQueryKey string
	runsLowConf  bool
	runsLimit    int
	runsOffset   int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List enrichment run audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Engine.Runs(ctx, store.RunFilter{
			QueryKey:      runsQueryKey,
			LowConfidence: runsLowConf,
			Limit:         runsLimit,
			Offset:        runsOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	},
}

var engageCmd = &cobra.Command{
	Use:   "engage <contact-id>",
	Short: "Record a meaningful interaction with a contact",
	Long:  "Stamps the contact's last-engaged time, feeding the recency term of person ranking.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		at := time.Now().UTC()
		if err := env.Engine.RecordEngagement(ctx, args[0], at); err != nil {
			return err
		}
		zap.L().Info("engagement recorded",
			zap.String("contact_id", args[0]),
			zap.Time("at", at),
		)
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsQueryKey, "query-key", "", "filter by normalized query key")
	runsCmd.Flags().BoolVar(&runsLowConf, "low-confidence", false, "only low-confidence runs")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum records to return")
	runsCmd.Flags().IntVar(&runsOffset, "offset", 0, "records to skip")
	rootCmd.AddCommand(runsCmd, engageCmd)
}
