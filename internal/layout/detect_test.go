package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		prompt string
		want   Archetype
	}{
		{"Create a flowchart for onboarding", ArchetypeFlowchart},
		{"Make a kanban board", ArchetypeKanban},
		{"SWOT analysis diagram", ArchetypeSwot},
		{"Hello", ArchetypeNone},
		{"sketch a mind map of ideas", ArchetypeMindmap},
		{"mindmap please", ArchetypeMindmap},
		{"our deployment process", ArchetypeFlowchart},
		{"KANBAN flowchart", ArchetypeKanban},
		{"swotify", ArchetypeNone}, // word boundary: no bare substring matches
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.prompt))
		})
	}
}
