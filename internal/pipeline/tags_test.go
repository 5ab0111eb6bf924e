package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		groups [][]string
		want   []string
	}{
		{
			name:   "lowercases and hyphenates",
			groups: [][]string{{"Cell Biology", "ATP Synthesis"}},
			want:   []string{"cell-biology", "atp-synthesis"},
		},
		{
			name:   "preserves hierarchy separator",
			groups: [][]string{{"Biology::Cell Membrane", "biology::Transport Proteins"}},
			want:   []string{"biology::cell-membrane", "biology::transport-proteins"},
		},
		{
			name:   "deduplicates across groups preserving order",
			groups: [][]string{{"mitosis", "Meiosis"}, {"MITOSIS", "genetics"}},
			want:   []string{"mitosis", "meiosis", "genetics"},
		},
		{
			name:   "drops empty entries",
			groups: [][]string{{"", "  ", "valid"}},
			want:   []string{"valid"},
		},
		{
			name:   "collapses internal whitespace",
			groups: [][]string{{"krebs   cycle", "electron\ttransport"}},
			want:   []string{"krebs-cycle", "electron-transport"},
		},
		{
			name: "no groups",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NormalizeTags(tc.groups...)
			assert.Equal(t, tc.want, got)
		})
	}
}
