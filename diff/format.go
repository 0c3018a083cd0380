package diff

import (
	"fmt"
	"strings"
)

// maxCardLines caps how many line entries the card renderer prints before
// truncating, so chat cards stay readable for large edits.
const maxCardLines = 20

// FormatForCard renders a Result as plain text suitable for a chat card.
func FormatForCard(r Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Revision %d -> %d: %s\n", r.PreviousRevision, r.NewRevision, r.Summary.Description)

	if len(r.Lines) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	shown := r.Lines
	truncated := 0
	if len(shown) > maxCardLines {
		truncated = len(shown) - maxCardLines
		shown = shown[:maxCardLines]
	}

	for _, l := range shown {
		switch l.Type {
		case Added:
			fmt.Fprintf(&b, "+ L%d %s\n", l.LineNumber, l.Content)
		case Removed:
			fmt.Fprintf(&b, "- L%d %s\n", l.LineNumber, l.Content)
		case Modified:
			fmt.Fprintf(&b, "~ L%d %s -> %s\n", l.LineNumber, l.Previous, l.Content)
		}
	}
	if truncated > 0 {
		fmt.Fprintf(&b, "… and %d more changed lines\n", truncated)
	}

	return strings.TrimRight(b.String(), "\n")
}
