package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Calls: %s–%s UTC\n",
		formatTime(result.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		formatTime(result.Summary.LastTimestamp, "15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		name := truncate(e.Type+"."+e.Member, 36)
		status := strings.ToUpper(e.Outcome)
		fmt.Fprintf(&b, "%-10s %-36s %-6s %8s  %s\n",
			formatTime(e.Timestamp, "15:04:05"), name, status,
			(time.Duration(e.DurationUS) * time.Microsecond).String(), truncate(e.Error, 40))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatTime(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func formatSummary(s ReplaySummary) string {
	parts := []string{fmt.Sprintf("%d ok", s.OK)}
	if s.Faults > 0 {
		parts = append(parts, fmt.Sprintf("%d fault", s.Faults))
	}
	if s.Panics > 0 {
		parts = append(parts, fmt.Sprintf("%d panic", s.Panics))
	}

	busiest := ""
	names := make([]string, 0, len(s.ByMember))
	for name := range s.ByMember {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if busiest == "" || s.ByMember[name] > s.ByMember[busiest] {
			busiest = name
		}
	}

	line := fmt.Sprintf("Summary: %s", strings.Join(parts, ", "))
	if busiest != "" {
		line += fmt.Sprintf(" | Busiest: %s (%d)", busiest, s.ByMember[busiest])
	}
	return line + "\n"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
