//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "match", "batch", "seed", "ingest", "migrate", "applications", "lenders"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lender-match", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd      string
		flag     string
		defValue string
	}{
		{"serve", "port", "0"},
		{"match", "format", "table"},
		{"match", "save", "false"},
		{"batch", "limit", "100"},
		{"batch", "status", "pending"},
		{"seed", "file", ""},
		{"ingest", "ai", "false"},
		{"ingest", "active", "false"},
		{"ingest", "policy-name", ""},
		{"ingest", "lender-type", ""},
		{"applications", "limit", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "%s should have --%s", tt.cmd, tt.flag)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestApplicationsAlias(t *testing.T) {
	c, _, err := rootCmd.Find([]string{"apps"})
	require.NoError(t, err)
	assert.Equal(t, "applications", c.Name())
}
