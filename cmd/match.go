package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	matchFormat string
	matchSave   bool
)

var matchCmd = &cobra.Command{
	Use:   "match <application-id>",
	Short: "Evaluate one application against every active policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, cleanup, err := initMatcher(ctx, st, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := svc.Match(ctx, args[0])
		if err != nil {
			return err
		}

		if matchSave {
			saved, err := saveRun(ctx, st, run)
			if err != nil {
				return err
			}
			run = saved
		}

		if err := writeMatches(cmd.OutOrStdout(), matchFormat, run.Results); err != nil {
			return err
		}
		if matchSave && matchFormat == "table" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nsaved run %s\n", run.ID)
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchFormat, "format", "table", "output format: table, json, csv")
	matchCmd.Flags().BoolVar(&matchSave, "save", false, "persist the run and mark the application matched")
	rootCmd.AddCommand(matchCmd)
}
