package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/provider"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and manage provider credit balances",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show remaining search and collect credits per provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		for _, name := range []string{provider.NameCoreSignal, provider.NameLusha, provider.NameProspeo} {
			for _, kind := range []credit.Kind{credit.KindSearch, credit.KindCollect} {
				n, err := env.Engine.Balance(ctx, name, kind)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %-8s %d\n", name, kind, n)
			}
		}
		return nil
	},
}

var creditsTopUpCmd = &cobra.Command{
	Use:   "topup <provider> <kind> <amount>",
	Short: "Set a provider's credit balance",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := credit.ParseKind(args[1])
		if err != nil {
			return err
		}
		var amount int
		if _, err := fmt.Sscanf(args[2], "%d", &amount); err != nil || amount < 0 {
			return eris.Errorf("invalid amount %q", args[2])
		}

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.TopUp(ctx, args[0], kind, amount); err != nil {
			return err
		}
		zap.L().Info("balance set",
			zap.String("provider", args[0]),
			zap.String("kind", string(kind)),
			zap.Int("amount", amount),
		)
		return nil
	},
}

var creditsRefillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Restore all configured balances to their refill amounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Refill(ctx); err != nil {
			return err
		}
		zap.L().Info("balances refilled")
		return nil
	},
}

func init() {
	creditsCmd.AddCommand(creditsBalanceCmd, creditsTopUpCmd, creditsRefillCmd)
	rootCmd.AddCommand(creditsCmd)
}
