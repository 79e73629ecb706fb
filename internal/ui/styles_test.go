package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	out := Table([]string{"NAME", "CHUNKS"}, [][]string{
		{"sky.txt", "1"},
		{"grass.md", "12"},
	})

	for _, want := range []string{"NAME", "CHUNKS", "sky.txt", "grass.md", "12"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 6, len(strings.Split(strings.TrimRight(out, "\n"), "\n")))
}

func TestHorizontalRule(t *testing.T) {
	assert.Contains(t, HorizontalRule(5), "─────")
}

func TestFormatScore(t *testing.T) {
	assert.Contains(t, FormatScore(0.875), "(87.5% match)")
}
