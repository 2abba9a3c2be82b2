package audit

// Entry is one line in the hash-chained JSONL audit log: a single
// intercepted call and how it ended. Only fixed struct fields are used so
// the encoded field order, and therefore the line hash, is reproducible.
type Entry struct {
	Timestamp    string `json:"ts"`
	InvocationID string `json:"invocation_id"`
	Type         string `json:"type"`
	Member       string `json:"member"`
	Kind         string `json:"kind"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
	DurationUS   int64  `json:"duration_us"`
	PrevHash     string `json:"prev_hash"`
}

// Outcome values.
const (
	OutcomeOK    = "ok"
	OutcomeFault = "fault"
	OutcomePanic = "panic"
)
