package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/ingest"
	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/store"
)

var importWorkspaceID string

var importCmd = &cobra.Command{
	Use:   "import <accounts>",
	Short: "Import a company account list from a CSV export",
	Long:  "Accepts a local file path, an http(s) URL, or an ftp URL. Companies are upserted by ID into the workspace.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importWorkspaceID == "" {
			return eris.New("--workspace-id is required")
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := openSource(ctx, args[0])
		if err != nil {
			return err
		}
		defer r.Close() //nolint:errcheck

		headerCh := make(chan []string, 1)
		rowCh, errCh := ingest.StreamCSV(ctx, r, ingest.CSVOptions{
			HasHeader: true,
			HeaderCh:  headerCh,
			TrimSpace: true,
		})
		companies, err := ingest.ParseCompanies(ctx, importWorkspaceID, rowCh, errCh, headerCh)
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			return eris.New("account list contains no usable rows")
		}

		upserted, err := upsertCompanies(cmd, env.Store, companies)
		if err != nil {
			return err
		}

		zap.L().Info("account import complete",
			zap.String("workspace_id", importWorkspaceID),
			zap.Int64("companies", upserted),
		)
		return nil
	},
}

// upsertCompanies bulk-loads through COPY on Postgres and falls back to
// row-at-a-time upserts elsewhere.
func upsertCompanies(cmd *cobra.Command, st store.Store, companies []model.Company) (int64, error) {
	if pg, ok := st.(*store.PostgresStore); ok {
		return pg.BulkUpsertCompanies(cmd.Context(), companies)
	}

	var n int64
	for i := range companies {
		if err := st.UpsertCompany(cmd.Context(), &companies[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func init() {
	importCmd.Flags().StringVar(&importWorkspaceID, "workspace-id", "", "workspace the companies belong to")
	rootCmd.AddCommand(importCmd)
}
