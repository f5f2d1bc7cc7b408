package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/store"
)

var (
	appsStatus string
	appsLimit  int
	appsOffset int
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "List loan applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		apps, err := st.ListApplications(ctx, store.ApplicationFilter{
			Status: model.ApplicationStatus(appsStatus),
			Limit:  appsLimit,
			Offset: appsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list applications")
		}

		formatApplications(cmd.OutOrStdout(), apps)
		return nil
	},
}

var lendersCmd = &cobra.Command{
	Use:   "lenders",
	Short: "List lenders and their policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lenders, err := st.ListLenders(ctx)
		if err != nil {
			return eris.Wrap(err, "list lenders")
		}

		formatLenders(cmd.OutOrStdout(), lenders)
		return nil
	},
}

func init() {
	applicationsCmd.Flags().StringVar(&appsStatus, "status", "", "filter by status")
	applicationsCmd.Flags().IntVar(&appsLimit, "limit", store.DefaultListLimit, "max rows")
	applicationsCmd.Flags().IntVar(&appsOffset, "offset", 0, "rows to skip")
	rootCmd.AddCommand(applicationsCmd, lendersCmd)
}
