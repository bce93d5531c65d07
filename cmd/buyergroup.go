package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/buyergroup"
)

var (
	bgDealSize string
	bgCategory string
)

var buyerGroupCmd = &cobra.Command{
	Use:   "buyer-group <company-id>",
	Short: "Classify the buyer group from a company's enriched roster",
	Long:  "Re-reads the stored roster, assigns buyer-group roles from title heuristics, and replaces the stored group. An empty group is reported, not hidden.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := buyerGroupRequest()
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.ResolveBuyerGroup(ctx, args[0], req)
		if err != nil {
			return err
		}

		if res.Empty {
			zap.L().Warn("no buyer group members identified",
				zap.String("company_id", args[0]),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			CompanyID string `json:"company_id"`
			Empty     bool   `json:"empty"`
			Members   any    `json:"members"`
		}{args[0], res.Empty, res.InGroup()})
	},
}

func buyerGroupRequest() (buyergroup.Request, error) {
	req := buyergroup.Request{ProductCategory: bgCategory}
	switch bgDealSize {
	case "":
	case "small":
		req.DealSize = buyergroup.DealSmall
	case "medium":
		req.DealSize = buyergroup.DealMedium
	case "large":
		req.DealSize = buyergroup.DealLarge
	default:
		return req, eris.Errorf("invalid --deal-size %q (small, medium, or large)", bgDealSize)
	}
	return req, nil
}

func init() {
	buyerGroupCmd.Flags().StringVar(&bgDealSize, "deal-size", "", "deal size hint: small, medium, or large")
	buyerGroupCmd.Flags().StringVar(&bgCategory, "category", "", "product category override")
	rootCmd.AddCommand(buyerGroupCmd)
}
