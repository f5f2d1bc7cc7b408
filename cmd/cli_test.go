//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/store"
)

// setupCLI points the CLI at a fresh SQLite database and returns its path.
func setupCLI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("LENDER_STORE_DRIVER", "sqlite")
	t.Setenv("LENDER_STORE_DATABASE_URL", path)
	t.Setenv("LENDER_LOG_LEVEL", "error")
	t.Setenv("LENDER_CACHE_REDIS_URL", "")
	return path
}

// runCLI executes the root command and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		matchFormat, matchSave = "table", false
		seedFile = ""
		appsStatus, appsLimit, appsOffset = "", store.DefaultListLimit, 0
		batchStatus, batchLimit = string(model.ApplicationPending), 100
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func createApplication(t *testing.T, path string, app model.Application) string {
	t.Helper()
	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	created, err := st.CreateApplication(context.Background(), app)
	require.NoError(t, err)
	return created.ID
}

func strongApplication() model.Application {
	paynet := 720
	return model.Application{
		BusinessName:    "Acme Excavation",
		AmountRequested: 50000,
		EquipmentType:   "Construction",
		FICOScore:       760,
		YearsInBusiness: 8,
		AnnualRevenue:   1500000,
		PaynetScore:     &paynet,
		City:            "Austin",
		State:           "TX",
	}
}

func TestCLI_SeedIsIdempotent(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "lenders created: 3")
	assert.Contains(t, out, "policies created: 4")

	out, err = runCLI(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "lenders created: 0")
	assert.Contains(t, out, "policies unchanged: 4")
}

func TestCLI_MatchJSON(t *testing.T) {
	path := setupCLI(t)
	_, err := runCLI(t, "seed")
	require.NoError(t, err)
	id := createApplication(t, path, strongApplication())

	out, err := runCLI(t, "match", id, "--format", "json")
	require.NoError(t, err)

	var results []model.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 4)
	for i, r := range results {
		assert.True(t, r.Eligible, "%s/%s", r.LenderName, r.PolicyName)
		assert.Empty(t, r.Reasons)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}

func TestCLI_MatchIneligible(t *testing.T) {
	path := setupCLI(t)
	_, err := runCLI(t, "seed")
	require.NoError(t, err)

	app := strongApplication()
	app.FICOScore = 600
	app.State = "CA"
	id := createApplication(t, path, app)

	out, err := runCLI(t, "match", id, "--format", "json")
	require.NoError(t, err)

	var results []model.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 4)
	for _, r := range results {
		assert.False(t, r.Eligible)
		assert.Equal(t, -1.0, r.Score)
		assert.NotEmpty(t, r.Reasons)
	}
}

func TestCLI_MatchSaveMarksMatched(t *testing.T) {
	path := setupCLI(t)
	_, err := runCLI(t, "seed")
	require.NoError(t, err)
	id := createApplication(t, path, strongApplication())

	out, err := runCLI(t, "match", id, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "saved run")

	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	app, err := st.GetApplication(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationMatched, app.Status)

	run, err := st.GetLatestMatchRun(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, run.Results, 4)
}

func TestCLI_MatchUnknownApplication(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "match", "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCLI_BatchMatchesPending(t *testing.T) {
	path := setupCLI(t)
	_, err := runCLI(t, "seed")
	require.NoError(t, err)
	createApplication(t, path, strongApplication())
	createApplication(t, path, strongApplication())

	out, err := runCLI(t, "batch")
	require.NoError(t, err)
	assert.Contains(t, out, "matched 2 applications (0 failed)")

	out, err = runCLI(t, "applications", "--status", "pending")
	require.NoError(t, err)
	assert.NotContains(t, out, "Acme Excavation")

	out, err = runCLI(t, "applications", "--status", "matched")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Excavation")
	assert.Contains(t, out, "$50,000")
}

func TestCLI_Lenders(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "seed")
	require.NoError(t, err)

	out, err := runCLI(t, "lenders")
	require.NoError(t, err)
	assert.Contains(t, out, "Stearns Bank")
	assert.Contains(t, out, "advantage-plus")
	assert.Contains(t, out, "Tier B")
}

func TestCLI_Migrate(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")
}

func TestCLI_UnsupportedDriver(t *testing.T) {
	setupCLI(t)
	t.Setenv("LENDER_STORE_DRIVER", "mysql")
	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestCLI_IngestAIRequiresKey(t *testing.T) {
	setupCLI(t)
	t.Setenv("LENDER_ANTHROPIC_KEY", "")
	_, err := runCLI(t, "ingest", "policy.pdf", "Some Lender", "--ai")
	t.Cleanup(func() { ingestAI = false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}
