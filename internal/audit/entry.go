package audit

// TimestampFormat is the wire format for entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Action is the flattened action recorded in each audit entry.
type Action struct {
	Tool        string `json:"tool"`
	Destination string `json:"destination,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Action    Action `json:"action"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	RulesHash string `json:"rules_hash"`
	PrevHash  string `json:"prev_hash"`
}
