package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/lender-match/internal/model"
)

var printer = message.NewPrinter(language.English)

// writeMatches renders results as a table, JSON array or CSV.
func writeMatches(out io.Writer, format string, results []model.MatchResult) error {
	switch format {
	case "table", "":
		formatMatchTable(out, results)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(results), "match: encode json")
	case "csv":
		return writeMatchCSV(out, results)
	default:
		return eris.Errorf("match: unsupported format %q", format)
	}
}

func formatMatchTable(out io.Writer, results []model.MatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LENDER\tPOLICY\tELIGIBLE\tSCORE\tREASONS")
	_, _ = fmt.Fprintln(w, "------\t------\t--------\t-----\t-------")

	for _, r := range results {
		eligible := "no"
		if r.Eligible {
			eligible = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.LenderName,
			r.PolicyName,
			eligible,
			displayScore(r),
			strings.Join(r.Reasons, "; "),
		)
	}
	_ = w.Flush()
}

func writeMatchCSV(out io.Writer, results []model.MatchResult) error {
	cw := csv.NewWriter(out)

	if err := cw.Write([]string{"lender_name", "policy_name", "eligible", "score", "reasons"}); err != nil {
		return eris.Wrap(err, "match: write CSV header")
	}
	for _, r := range results {
		row := []string{
			r.LenderName,
			r.PolicyName,
			strconv.FormatBool(r.Eligible),
			displayScore(r),
			strings.Join(r.Reasons, "; "),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "match: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "match: flush CSV")
}

// displayScore hides the sentinel score of ineligible results.
func displayScore(r model.MatchResult) string {
	if !r.Eligible {
		return "-"
	}
	return strconv.FormatFloat(r.Score, 'f', 4, 64)
}

func formatApplications(out io.Writer, apps []model.Application) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBUSINESS\tAMOUNT\tEQUIPMENT\tFICO\tPAYNET\tLOCATION\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t---------\t----\t------\t--------\t------\t-------")

	for _, a := range apps {
		paynet := "-"
		if a.PaynetScore != nil {
			paynet = strconv.Itoa(*a.PaynetScore)
		}
		business := a.BusinessName
		if len(business) > 30 {
			business = business[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s, %s\t%s\t%s\n",
			a.ID,
			business,
			printer.Sprintf("$%.0f", a.AmountRequested),
			a.EquipmentType,
			a.FICOScore,
			paynet,
			a.City, a.State,
			a.Status,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatLenders(out io.Writer, lenders []model.Lender) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LENDER\tSLUG\tTYPE\tPOLICY\tVERSION\tACTIVE\tRULES")
	_, _ = fmt.Fprintln(w, "------\t----\t----\t------\t-------\t------\t-----")

	for _, l := range lenders {
		if len(l.Policies) == 0 {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t-\t-\n", l.Name, l.Slug, l.Type)
			continue
		}
		for _, p := range l.Policies {
			kinds := make([]string, len(p.Rules))
			for i, r := range p.Rules {
				kinds[i] = r.Kind
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
				l.Name, l.Slug, l.Type, p.Name, p.Version, p.Active, strings.Join(kinds, ","))
		}
	}
	_ = w.Flush()
}
