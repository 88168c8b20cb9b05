package output

import (
	"fmt"
	"strings"

	"github.com/greater-social/greater/internal/core"
)

// StatusMarkdown renders a timeline page as a markdown table.
func StatusMarkdown(statuses []core.Status) string {
	var sb strings.Builder
	sb.WriteString("| ID | Author | When | Status |\n")
	sb.WriteString("|----|--------|------|--------|\n")

	for _, s := range statuses {
		row := statusRow(s)
		author := row.Author
		if row.Via != "" {
			author += " (via " + row.Via + ")"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(row.ID),
			escapeMarkdownCell(author),
			formatTime(row.When),
			escapeMarkdownCell(row.Text),
		))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
