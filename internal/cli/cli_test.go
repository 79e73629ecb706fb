package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nickcecere/docqa/internal/qa"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{50 << 20, "50.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld, again", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "docs/a.md", truncatePath("docs/a.md", 40))
	assert.Equal(t, ".../report.pdf", truncatePath("contracts/2024/q1/report.pdf", 14))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "(not set)", redact(""))
	assert.Equal(t, "****", redact("short"))
	assert.Equal(t, "****cdef", redact("sk-0123456789abcdef"))
}

func TestHealthStatus(t *testing.T) {
	assert.Contains(t, healthStatus(&qa.Status{}), "empty")
	assert.Contains(t, healthStatus(&qa.Status{Documents: 2, Chunks: 1}), "no chunks")
	assert.Contains(t, healthStatus(&qa.Status{Documents: 2, Chunks: 5}), "healthy")
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"upload", "ingest", "ask", "docs", "rename", "rm", "history",
		"status", "config", "watch", "mcp", "install", "uninstall", "version",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "debug", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.NotNil(t, askCmd.Flags().Lookup("doc"))
}
