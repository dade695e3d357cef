package kvs

import "encoding/json"

// TombstoneValue is the sentinel value that marks a key deleted at replay.
// Setting a key to this value is rejected by [Store.Set].
const TombstoneValue = "__tombstone__"

// LogEntry is a single record in the log file: either a live write (Value
// is the stored value) or a deletion marker (Value is [TombstoneValue]).
type LogEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// IsTombstone reports whether e marks its key deleted.
func (e LogEntry) IsTombstone() bool {
	return e.Value == TombstoneValue
}

// encodeEntry serializes e as a single self-delimited JSON object. Records
// are concatenated in the log file without separators; JSON's own object
// syntax provides the delimiting spec §4.1 requires.
func encodeEntry(e LogEntry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, wrapErr(KindSerialization, "encode log entry", err)
	}

	return b, nil
}

// decodeEntry decodes exactly one LogEntry from b.
func decodeEntry(b []byte) (LogEntry, error) {
	var e LogEntry

	err := json.Unmarshal(b, &e)
	if err != nil {
		return LogEntry{}, wrapErr(KindSerialization, "decode log entry", err)
	}

	return e, nil
}
