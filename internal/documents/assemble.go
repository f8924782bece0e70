package documents

import (
	"fmt"
	"strings"
	"time"

	"storygen-backend/internal/pipeline"
)

// Assemble concatenates every stage artifact in pipeline order. Nothing is written.
func Assemble(subjectID string, artifacts map[pipeline.Stage]pipeline.Artifact, now time.Time) (Document, error) {
	doc := Document{SubjectID: subjectID, CreatedAt: now}
	var body strings.Builder
	for _, stage := range pipeline.WorkStages() {
		a, ok := artifacts[stage]
		if !ok || strings.TrimSpace(a.Text) == "" {
			return Document{}, fmt.Errorf("%w: missing %s", ErrIncomplete, stage)
		}
		title := pipeline.Title(stage)
		fmt.Fprintf(&body, "## %s\n%s\n\n", title, strings.TrimSpace(a.Text))
		doc.Sections = append(doc.Sections, Section{
			Stage:   stage,
			Title:   title,
			Text:    a.Text,
			Display: a.Display,
		})
	}
	doc.Body = body.String()
	return doc, nil
}
