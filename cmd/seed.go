package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lender-match/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load lenders and policies from a seed file",
	Long:  "Creates the lenders and policies in the seed file. Without --file the built-in lender set is used. Running seed again only adds policies whose rules or scoring changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			f   *seed.File
			err error
		)
		if seedFile != "" {
			f, err = seed.LoadFile(seedFile)
		} else {
			f, err = seed.Default()
		}
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := seed.Apply(ctx, st, f)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "lenders created: %d\npolicies created: %d\npolicies unchanged: %d\n",
			sum.LendersCreated, sum.PoliciesCreated, sum.PoliciesUnchanged)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed YAML file (default: built-in lenders)")
	rootCmd.AddCommand(seedCmd)
}
