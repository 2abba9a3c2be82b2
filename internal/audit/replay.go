package audit

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// ReplayFilter selects entries. Empty fields do not filter.
type ReplayFilter struct {
	Type   string
	Member string
	From   time.Time
	To     time.Time
}

// ReplaySummary holds outcome counts for the selected entries.
type ReplaySummary struct {
	Total          int            `json:"total"`
	OK             int            `json:"ok"`
	Faults         int            `json:"faults"`
	Panics         int            `json:"panics"`
	ByMember       map[string]int `json:"by_member"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
	MaxDurationUS  int64          `json:"max_duration_us"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
// Malformed lines are skipped; use Verify to detect them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{Summary: ReplaySummary{ByMember: make(map[string]int)}}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return result, nil
}

// Summarize builds a result over entries that were already selected.
func Summarize(entries []Entry) *ReplayResult {
	result := &ReplayResult{Entries: entries, Summary: ReplaySummary{ByMember: make(map[string]int)}}
	for _, e := range entries {
		result.Summary.add(e)
	}
	return result
}

func (f ReplayFilter) matches(e Entry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Member != "" && e.Member != f.Member {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (s *ReplaySummary) add(e Entry) {
	s.Total++
	switch e.Outcome {
	case OutcomeOK:
		s.OK++
	case OutcomeFault:
		s.Faults++
	case OutcomePanic:
		s.Panics++
	}
	s.ByMember[e.Type+"."+e.Member]++
	if e.DurationUS > s.MaxDurationUS {
		s.MaxDurationUS = e.DurationUS
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
