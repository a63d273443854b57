package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rules diff: %s -> %s\n", r.OldPath, r.NewPath)
	if !r.HasChanges {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	if len(r.Changes) > 0 {
		b.WriteString("\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %-10s %s -> %s\n", c.Field+":", c.Old, c.New)
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			var sign string
			switch rc.Type {
			case "added":
				sign = "+"
			case "removed":
				sign = "-"
			default:
				sign = "~"
			}
			fmt.Fprintf(&b, "    %s %s", sign, rc.Rule)
			if len(rc.Fields) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(rc.Fields, ", "))
			}
			if rc.Type == "moved" {
				b.WriteString(" (order)")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatJSON renders the diff result as indented JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
