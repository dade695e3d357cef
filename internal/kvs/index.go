package kvs

// Location is the byte range of a live record in the active log file.
type Location struct {
	Offset int64
	Length int64
}

// Index maps a key to the location of its most recent live record.
// Insertion order is irrelevant; only the current mapping matters.
type Index map[string]Location
