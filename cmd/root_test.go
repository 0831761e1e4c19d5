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

	expected := []string{"import", "reports", "compare", "metrics", "analyze", "notion", "slides", "export", "fees", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gmv-tracker", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestReportsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range reportsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "delete", "notes"} {
		assert.True(t, names[name], "expected reports subcommand %q", name)
	}
}

func TestNotionCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range notionCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"sync", "sync-all", "status"} {
		assert.True(t, names[name], "expected notion subcommand %q", name)
	}
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"ads", "fulfillment", "week", "year", "date", "replace", "policy", "fee-file", "fee-schedule", "commission-rate"} {
		require.NotNil(t, importCmd.Flags().Lookup(name), "import should have --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestReportsListCommand_Flags(t *testing.T) {
	flag := reportsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}
