package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/pkg/crm"
)

var crmWorkspaceID string

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Push engine output to Salesforce",
}

var crmSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert workspace contacts, ranks, and buyer-group roles into Salesforce",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "crm")
		if err != nil {
			return err
		}
		defer env.Close()

		client, err := initSalesforce()
		if err != nil {
			return err
		}
		syncer := crm.NewSyncer(client)

		companies, err := env.Store.ListCompanies(ctx, crmWorkspaceID)
		if err != nil {
			return err
		}

		var (
			contacts []*model.CanonicalContact
			people   []model.PersonRank
			members  []model.BuyerGroupMember
		)
		for _, co := range companies {
			roster, err := env.Store.ListRoster(ctx, co.ID)
			if err != nil {
				return err
			}
			contacts = append(contacts, roster...)

			pr, err := env.Store.ListPersonRanks(ctx, co.ID)
			if err != nil {
				return err
			}
			people = append(people, pr...)

			mm, err := env.Store.ListMembers(ctx, co.ID)
			if err != nil {
				return err
			}
			members = append(members, mm...)
		}

		companyRanks, err := env.Store.ListCompanyRanks(ctx, crmWorkspaceID)
		if err != nil {
			return err
		}

		contactRes, err := syncer.SyncContacts(ctx, contacts)
		if err != nil {
			return err
		}
		rankRes, err := syncer.SyncRanks(ctx, companyRanks, people, members)
		if err != nil {
			return err
		}

		zap.L().Info("salesforce sync complete",
			zap.String("workspace_id", crmWorkspaceID),
			zap.Int("contacts_upserted", contactRes.Upserted),
			zap.Int("contacts_failed", contactRes.Failed),
			zap.Int("ranks_upserted", rankRes.Upserted),
			zap.Int("ranks_failed", rankRes.Failed),
		)
		return nil
	},
}

func init() {
	crmSyncCmd.Flags().StringVar(&crmWorkspaceID, "workspace-id", "", "workspace to sync")
	_ = crmSyncCmd.MarkFlagRequired("workspace-id")
	crmCmd.AddCommand(crmSyncCmd)
	rootCmd.AddCommand(crmCmd)
}
