//go:build !integration

package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lender-match/internal/model"
)

var sampleResults = []model.MatchResult{
	{LenderName: "Stearns Bank", PolicyName: "Tier 1", Eligible: true, Reasons: []string{}, Score: 0.76364},
	{LenderName: "Apex Commercial Capital", PolicyName: "Tier A", Eligible: false,
		Reasons: []string{"FICO 640 is below minimum 700", "State CA is excluded"}, Score: -1},
}

func TestWriteMatches_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMatches(&buf, "table", sampleResults))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "LENDER")
	assert.Contains(t, lines[2], "Stearns Bank")
	assert.Contains(t, lines[2], "0.7636")
	assert.Contains(t, lines[2], "yes")
	assert.Contains(t, lines[3], "no")
	assert.Contains(t, lines[3], "FICO 640 is below minimum 700; State CA is excluded")
	assert.NotContains(t, lines[3], "-1")
}

func TestWriteMatches_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMatches(&buf, "json", sampleResults))

	var got []model.MatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleResults, got)
}

func TestWriteMatches_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMatches(&buf, "csv", sampleResults))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"lender_name", "policy_name", "eligible", "score", "reasons"},
		{"Stearns Bank", "Tier 1", "true", "0.7636", ""},
		{"Apex Commercial Capital", "Tier A", "false", "-", "FICO 640 is below minimum 700; State CA is excluded"},
	}, rows)
}

func TestWriteMatches_UnknownFormat(t *testing.T) {
	err := writeMatches(&bytes.Buffer{}, "xml", sampleResults)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported format "xml"`)
}

func TestDisplayScore(t *testing.T) {
	tests := []struct {
		name string
		r    model.MatchResult
		want string
	}{
		{"eligible", model.MatchResult{Eligible: true, Score: 0.5}, "0.5000"},
		{"eligible zero", model.MatchResult{Eligible: true, Score: 0}, "0.0000"},
		{"ineligible", model.MatchResult{Eligible: false, Score: -1}, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, displayScore(tt.r))
		})
	}
}

func TestFormatApplications(t *testing.T) {
	paynet := 700
	apps := []model.Application{
		{
			ID: "a1", BusinessName: "A Very Long Business Name That Gets Cut", AmountRequested: 1250000,
			EquipmentType: "Truck", FICOScore: 720, PaynetScore: &paynet, City: "Austin", State: "TX",
			Status: model.ApplicationPending, CreatedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		{ID: "a2", BusinessName: "Small Co", AmountRequested: 900, EquipmentType: "IT", FICOScore: 650, City: "Reno", State: "NV", Status: model.ApplicationMatched},
	}

	var buf bytes.Buffer
	formatApplications(&buf, apps)
	out := buf.String()

	assert.Contains(t, out, "$1,250,000")
	assert.Contains(t, out, "A Very Long Business Name T...")
	assert.Contains(t, out, "Austin, TX")
	assert.Contains(t, out, "2025-03-01 09:30")
	assert.Contains(t, out, "700")
	assert.Contains(t, out, "matched")
}

func TestFormatLenders(t *testing.T) {
	lenders := []model.Lender{
		{Name: "Stearns Bank", Slug: "stearns", Type: "Bank", Policies: []model.PolicyRecord{
			{Name: "Tier 1", Version: 2, Active: true, Rules: []model.RuleDefinition{{Kind: "min_fico"}, {Kind: "min_paynet"}}},
		}},
		{Name: "Empty Lender", Slug: "empty-lender", Type: "Lender"},
	}

	var buf bytes.Buffer
	formatLenders(&buf, lenders)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "min_fico,min_paynet")
	assert.Contains(t, lines[2], "true")
	assert.Contains(t, lines[3], "empty-lender")
}
