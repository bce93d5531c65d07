package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
)

var (
	rerankCompanyID   string
	rerankWorkspaceID string
)

var rerankCmd = &cobra.Command{
	Use:   "rerank",
	Short: "Recompute company and person rankings",
	Long:  "Scoped to one company (--company-id) or a whole workspace (--workspace-id). Ranks are replaced transactionally; a failed rerank leaves the prior ranks intact.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (rerankCompanyID == "") == (rerankWorkspaceID == "") {
			return eris.New("exactly one of --company-id or --workspace-id is required")
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		var res *model.RerankResult
		if rerankCompanyID != "" {
			res, err = env.Engine.RerankCompany(ctx, rerankCompanyID)
		} else {
			res, err = env.Engine.RerankWorkspace(ctx, rerankWorkspaceID)
		}
		if err != nil {
			return err
		}

		zap.L().Info("rerank complete",
			zap.String("scope", string(res.Scope)),
			zap.Int("companies", res.CompaniesRanked),
			zap.Int("people", res.PeopleRanked),
			zap.Int64("duration_ms", res.Duration),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rerankCmd.Flags().StringVar(&rerankCompanyID, "company-id", "", "rerank people within this company")
	rerankCmd.Flags().StringVar(&rerankWorkspaceID, "workspace-id", "", "rerank all companies and people in this workspace")
	rootCmd.AddCommand(rerankCmd)
}
