package report

import (
	"strings"
)

const (
	headingSummary         = "RESUMO EXECUTIVO"
	headingFindings        = "ACHADOS PRINCIPAIS"
	headingDetailed        = "ANÁLISE DETALHADA"
	headingRecommendations = "ORIENTAÇÕES TERAPÊUTICAS"
)

// Parse extracts the structured parts of a Markdown report. Missing
// sections leave their fields empty; the complete text is always kept.
func Parse(content, model string) Generated {
	sections := splitSections(content, "### ")
	g := Generated{
		Content:         content,
		Summary:         strings.TrimSpace(sections[headingSummary]),
		MainFindings:    bullets(sections[headingFindings]),
		Recommendations: bullets(sections[headingRecommendations]),
		Model:           model,
	}

	for label, dst := range map[string]*string{
		"Hemácias":   &g.RedBloodCells,
		"Leucócitos": &g.WhiteBloodCells,
		"Plaquetas":  &g.Platelets,
		"Plasma":     &g.Plasma,
	} {
		*dst = labeledBullet(sections[headingDetailed], label)
	}

	therapy := splitSections(sections[headingRecommendations], "#### ")
	for title, dst := range map[string]*string{
		"SUPLEMENTAÇÃO":            &g.Supplementation,
		"FITOTERAPIA":              &g.Phytotherapy,
		"ORIENTAÇÕES NUTRICIONAIS": &g.NutritionalGuidance,
	} {
		*dst = strings.TrimSpace(therapy[title])
	}
	return g
}

// splitSections maps each upper-cased heading with the given marker to the
// text up to the next heading of the same or a higher level.
func splitSections(text, marker string) map[string]string {
	out := make(map[string]string)
	level := strings.Count(marker, "#")
	var current string
	var body []string
	flush := func() {
		if current != "" {
			out[current] = strings.Join(body, "\n")
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, marker) {
			flush()
			current = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(trimmed, marker)))
			body = nil
			continue
		}
		if current != "" && isHigherHeading(trimmed, level) {
			flush()
			current, body = "", nil
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return out
}

func isHigherHeading(line string, level int) bool {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	return n > 0 && n < level && n < len(line) && line[n] == ' '
}

// bullets returns the "- " items of a section without their marker.
func bullets(section string) []string {
	items := []string{}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") || strings.HasPrefix(line, "---") {
			continue
		}
		if item := strings.TrimSpace(strings.TrimPrefix(line, "-")); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// labeledBullet returns the text after "- **<label>:**" in section.
func labeledBullet(section, label string) string {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		for _, prefix := range []string{"**" + label + ":**", "**" + label + "**:", label + ":"} {
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				return strings.TrimSpace(rest)
			}
		}
	}
	return ""
}
