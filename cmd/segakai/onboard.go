package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/segakai/segakai/internal/onboard"
	"github.com/segakai/segakai/internal/wizard"
)

func newOnboardCmd(cfg *Config) *cobra.Command {
	var restart bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Answer the onboarding questions and generate a plan",
		Long: `Walks through personal details, lifestyle, physical attributes and fitness
goals, then generates a plan on the review step. The current step is kept in
the state directory so an interrupted session resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			indicator, err := wizard.NewFileIndicator(cfg.StateDir)
			if err != nil {
				return err
			}
			if restart {
				if err := indicator.Clear(); err != nil {
					return err
				}
			}

			catalog, err := wizard.DefaultCatalog()
			if err != nil {
				return err
			}
			seq := wizard.NewSequencer(wizard.NewStore(), catalog, indicator)
			asm := wizard.NewAssembler(c, c, catalog)
			runner := onboard.NewRunner(cmd.InOrStdin(), cmd.OutOrStdout(), seq, asm)

			res, err := runner.Run(cmd.Context())
			if errors.Is(err, onboard.ErrQuit) {
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped at step %d. Run `segakai onboard` to continue.\n", seq.CurrentStep())
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "View it again with `segakai plans %s`.\n", res.PlanID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&restart, "restart", false, "start again from step 1")
	return cmd
}
