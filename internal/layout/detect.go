package layout

import "regexp"

// Archetype names a diagram shape convention driving automatic placement.
type Archetype string

const (
	ArchetypeNone      Archetype = ""
	ArchetypeFlowchart Archetype = "flowchart"
	ArchetypeMindmap   Archetype = "mindmap"
	ArchetypeKanban    Archetype = "kanban"
	ArchetypeSwot      Archetype = "swot"
)

// Keyword patterns are matched on word boundaries, case-insensitively. SWOT
// and kanban outrank flowchart so prompts like "SWOT analysis diagram" pick
// the template archetype rather than the co-occurring flowchart keyword.
var (
	swotPattern      = regexp.MustCompile(`(?i)\bswot\b`)
	kanbanPattern    = regexp.MustCompile(`(?i)\bkanban\b`)
	mindmapPattern   = regexp.MustCompile(`(?i)\bmind[ -]?map(s|ping)?\b`)
	flowchartPattern = regexp.MustCompile(`(?i)\b(flow[ -]?charts?|diagrams?|process(es)?|workflows?|steps)\b`)
)

// Detect inspects a free-text prompt and returns the layout archetype it
// asks for, or ArchetypeNone when nothing matches.
func Detect(prompt string) Archetype {
	switch {
	case swotPattern.MatchString(prompt):
		return ArchetypeSwot
	case kanbanPattern.MatchString(prompt):
		return ArchetypeKanban
	case mindmapPattern.MatchString(prompt):
		return ArchetypeMindmap
	case flowchartPattern.MatchString(prompt):
		return ArchetypeFlowchart
	default:
		return ArchetypeNone
	}
}
