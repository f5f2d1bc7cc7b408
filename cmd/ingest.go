package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lender-match/internal/ingest"
	"github.com/sells-group/lender-match/internal/ocr"
	"github.com/sells-group/lender-match/pkg/anthropic"
)

var (
	ingestAI         bool
	ingestActive     bool
	ingestPolicyName string
	ingestLenderType string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path> <lender-name>",
	Short: "Extract a lender policy from a PDF or text document",
	Long:  "Extracts text from the document, parses eligibility rules from it and stores them as a new policy version. Policies are stored inactive unless --active is set.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var parser ingest.Parser = ingest.NewRegexParser()
		if ingestAI {
			if err := cfg.Validate("ingest_ai"); err != nil {
				return err
			}
			parser = ingest.NewAIParser(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ing := ingest.New(ocr.NewExtractor(cfg.Ingest), parser, st)
		rec, err := ing.Ingest(ctx, ingest.Request{
			Path:       args[0],
			LenderName: args[1],
			PolicyName: ingestPolicyName,
			LenderType: ingestLenderType,
			Active:     ingestActive,
		})
		if err != nil {
			return err
		}

		kinds := make([]string, len(rec.Rules))
		for i, r := range rec.Rules {
			kinds[i] = r.Kind
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored %s v%d (%s) active=%t rules: %s\n",
			rec.Name, rec.Version, rec.ID, rec.Active, strings.Join(kinds, ", "))
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAI, "ai", false, "parse rules with Claude instead of regular expressions")
	ingestCmd.Flags().BoolVar(&ingestActive, "active", false, "activate the policy immediately")
	ingestCmd.Flags().StringVar(&ingestPolicyName, "policy-name", "", "policy name (default: file name)")
	ingestCmd.Flags().StringVar(&ingestLenderType, "lender-type", "", "lender type when the lender is new (default: Lender)")
	rootCmd.AddCommand(ingestCmd)
}
