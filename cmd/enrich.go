package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/intel"
	"github.com/adrata/intel-engine/internal/model"
)

var (
	enrichName      string
	enrichCompany   string
	enrichDomain    string
	enrichEmail     string
	enrichURL       string
	enrichCompanyID string
	enrichForce     bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Resolve one person through the provider waterfall",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		contact, err := env.Engine.EnrichPerson(ctx, intel.EnrichRequest{
			Query: model.IdentityQuery{
				Name:          enrichName,
				CompanyName:   enrichCompany,
				CompanyDomain: enrichDomain,
				Email:         enrichEmail,
				ProfileURL:    enrichURL,
			},
			CompanyID:    enrichCompanyID,
			ForceRefresh: enrichForce,
		})
		if err != nil {
			return err
		}

		zap.L().Info("enrichment complete",
			zap.String("contact_id", contact.ID),
			zap.Float64("confidence", contact.Confidence),
			zap.Bool("low_confidence", contact.LowConfidence),
			zap.Strings("providers", contact.ProvidersTried),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(contact)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichName, "name", "", "person's full name")
	enrichCmd.Flags().StringVar(&enrichCompany, "company", "", "company name")
	enrichCmd.Flags().StringVar(&enrichDomain, "domain", "", "company domain")
	enrichCmd.Flags().StringVar(&enrichEmail, "email", "", "known email address")
	enrichCmd.Flags().StringVar(&enrichURL, "url", "", "known profile URL")
	enrichCmd.Flags().StringVar(&enrichCompanyID, "company-id", "", "attach the contact to this company roster")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "re-run the waterfall even when a fresh cached contact exists")
	rootCmd.AddCommand(enrichCmd)
}
