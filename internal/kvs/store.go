// Package kvs implements the log-structured key/value store: an
// append-only record file, an in-memory index, and periodic compaction.
package kvs

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
)

// CompactionThreshold is the dirty-record count above which [Store]
// triggers compaction after a mutation.
const CompactionThreshold = 1024

const (
	logFileName       = "data.log"
	compactedFileName = "data--compacted.log"
	lockFileName      = "lock"
	logFilePerm       = 0o644
)

// Engine is the uniform capability the wire server drives: set, get,
// remove, and self-identification by engine name.
type Engine interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Remove(key string) error
	Name() string
	Close() error
}

// Store is a single-node, single-writer log-structured key/value store.
// It is not safe for concurrent use — per spec §5.1 the store mutates its
// writer, reader, and index exclusively, and callers (the wire server)
// serialize access by accepting one connection at a time.
type Store struct {
	fs  fsx.FS
	dir string

	lock *fsx.Lock

	writer File
	reader File

	index     Index
	toCompact int
	writePos  int64
}

// File is the open-handle subset Store needs; satisfied by [fsx.File].
type File = fsx.File

// Open opens (creating if necessary) a log store rooted at dir. It replays
// data.log from offset 0 to rebuild the index, then compacts immediately
// if the replay-derived dirty count already exceeds [CompactionThreshold].
func Open(dir string, fs fsx.FS) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(KindIO, "create store dir", err)
	}

	// Per spec §5.1 the store mutates its writer, reader, and index
	// exclusively, but that assumption only holds within one process. A
	// held flock on a dedicated lock file in dir stops a second
	// kvs-server from opening the same directory and corrupting data.log.
	lock, err := fsx.NewLocker(fs).TryLock(filepath.Join(dir, lockFileName))
	if err != nil {
		if errors.Is(err, fsx.ErrWouldBlock) {
			return nil, wrapErr(KindIO, "store directory is already open by another process", err)
		}

		return nil, wrapErr(KindIO, "locking store directory", err)
	}

	// A stray compacted file from a crash mid-compaction is never
	// authoritative; discard it so it cannot be mistaken for data.log.
	_ = fs.Remove(filepath.Join(dir, compactedFileName))

	logPath := filepath.Join(dir, logFileName)

	writer, err := fs.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
	if err != nil {
		_ = lock.Close()

		return nil, wrapErr(KindIO, "open log for append", err)
	}

	reader, err := fs.OpenFile(logPath, os.O_RDONLY, logFilePerm)
	if err != nil {
		_ = writer.Close()
		_ = lock.Close()

		return nil, wrapErr(KindIO, "open log for read", err)
	}

	index, toCompact, endOffset, err := replay(reader)
	if err != nil {
		_ = writer.Close()
		_ = reader.Close()
		_ = lock.Close()

		return nil, err
	}

	s := &Store{
		fs:        fs,
		dir:       dir,
		lock:      lock,
		writer:    writer,
		reader:    reader,
		index:     index,
		toCompact: toCompact,
		writePos:  endOffset,
	}

	if s.toCompact > CompactionThreshold {
		if err := s.compact(); err != nil {
			_ = s.Close()

			return nil, err
		}
	}

	return s, nil
}

// replay decodes the concatenated JSON records in r from the start,
// rebuilding the index and dirty counter. A corrupt or truncated trailing
// record is rejected loudly, never silently truncated, per spec §4.1/§9.
func replay(r File) (Index, int, int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, wrapErr(KindIO, "seek log for replay", err)
	}

	index := make(Index)

	var toCompact int

	var cursor int64

	dec := json.NewDecoder(r)

	for {
		var entry LogEntry

		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, 0, 0, wrapErr(KindSerialization, "corrupt or truncated log record during replay", err)
		}

		next := dec.InputOffset()
		length := next - cursor

		if entry.IsTombstone() {
			if _, ok := index[entry.Key]; ok {
				delete(index, entry.Key)
			}

			toCompact++
		} else {
			if _, ok := index[entry.Key]; ok {
				toCompact++
			}

			index[entry.Key] = Location{Offset: cursor, Length: length}
		}

		cursor = next
	}

	return index, toCompact, cursor, nil
}

// Name identifies the engine kind for the engine-selection guard.
func (s *Store) Name() string { return "kvs" }

// Set writes a live record for key and updates the index. Setting a value
// equal to [TombstoneValue] is rejected.
func (s *Store) Set(key, value string) error {
	if value == TombstoneValue {
		return newErr(KindConversion, "value must not equal the tombstone sentinel")
	}

	if err := s.appendAndIndex(LogEntry{Key: key, Value: value}); err != nil {
		return err
	}

	if s.toCompact > CompactionThreshold {
		return s.compact()
	}

	return nil
}

// Get returns the current value for key, or ok=false if the key is absent.
// Get of an absent key is not an error.
func (s *Store) Get(key string) (string, bool, error) {
	loc, ok := s.index[key]
	if !ok {
		return "", false, nil
	}

	buf := make([]byte, loc.Length)

	if _, err := s.reader.Seek(loc.Offset, io.SeekStart); err != nil {
		return "", false, wrapErr(KindIO, "seek log for read", err)
	}

	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return "", false, wrapErr(KindIO, "read log record", err)
	}

	entry, err := decodeEntry(buf)
	if err != nil {
		return "", false, err
	}

	return entry.Value, true, nil
}

// Remove writes a tombstone for key and drops it from the index. It fails
// with [ErrKeyNotFound] (kind [KindKeyNotFound]) if key has no live record.
func (s *Store) Remove(key string) error {
	if _, ok := s.index[key]; !ok {
		return wrapErr(KindKeyNotFound, "remove", ErrKeyNotFound)
	}

	if err := s.appendAndIndex(LogEntry{Key: key, Value: TombstoneValue}); err != nil {
		return err
	}

	delete(s.index, key)
	s.toCompact++

	if s.toCompact > CompactionThreshold {
		return s.compact()
	}

	return nil
}

// appendAndIndex writes entry to the log and, for non-tombstone entries,
// updates the index (bumping toCompact if the key already had an entry).
// Tombstone bookkeeping (delete + toCompact) is done by the caller, since
// Set and Remove diverge on exactly which key the tombstone applies to.
func (s *Store) appendAndIndex(entry LogEntry) error {
	b, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	writingStart := s.writePos

	n, err := s.writer.Write(b)
	if err != nil {
		return wrapErr(KindIO, "append log record", err)
	}

	if err := s.writer.Sync(); err != nil {
		return wrapErr(KindIO, "flush log", err)
	}

	s.writePos += int64(n)
	writingEnd := s.writePos

	if !entry.IsTombstone() {
		if _, existed := s.index[entry.Key]; existed {
			s.toCompact++
		}

		s.index[entry.Key] = Location{Offset: writingStart, Length: writingEnd - writingStart}
	}

	return nil
}

// compact rewrites the live record set into data--compacted.log, renames it
// over data.log, and resets the dirty counter. The rename is atomic within
// the directory; on crash mid-compaction the original data.log is
// untouched and remains authoritative.
func (s *Store) compact() error {
	compactedPath := filepath.Join(s.dir, compactedFileName)
	logPath := filepath.Join(s.dir, logFileName)

	compactedWriter, err := s.fs.OpenFile(compactedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePerm)
	if err != nil {
		return wrapErr(KindIO, "create compaction file", err)
	}

	newIndex := make(Index, len(s.index))

	var newOffset int64

	// Deterministic order keeps compaction reproducible in tests, though
	// the spec does not require it.
	for _, key := range sortedKeys(s.index) {
		loc := s.index[key]

		if _, err := s.reader.Seek(loc.Offset, io.SeekStart); err != nil {
			_ = compactedWriter.Close()

			return wrapErr(KindIO, "seek source log during compaction", err)
		}

		n, err := io.CopyN(compactedWriter, s.reader, loc.Length)
		if err != nil {
			_ = compactedWriter.Close()

			return wrapErr(KindIO, "copy record during compaction", err)
		}

		newIndex[key] = Location{Offset: newOffset, Length: n}
		newOffset += n
	}

	if err := compactedWriter.Sync(); err != nil {
		_ = compactedWriter.Close()

		return wrapErr(KindIO, "sync compaction file", err)
	}

	if err := compactedWriter.Close(); err != nil {
		return wrapErr(KindIO, "close compaction file", err)
	}

	if err := s.fs.Rename(compactedPath, logPath); err != nil {
		return wrapErr(KindIO, "commit compaction (rename)", err)
	}

	if err := s.writer.Close(); err != nil {
		return wrapErr(KindIO, "close old log writer", err)
	}

	if err := s.reader.Close(); err != nil {
		return wrapErr(KindIO, "close old log reader", err)
	}

	newWriter, err := s.fs.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
	if err != nil {
		return wrapErr(KindIO, "reopen log for append after compaction", err)
	}

	newReader, err := s.fs.OpenFile(logPath, os.O_RDONLY, logFilePerm)
	if err != nil {
		_ = newWriter.Close()

		return wrapErr(KindIO, "reopen log for read after compaction", err)
	}

	s.writer = newWriter
	s.reader = newReader
	s.index = newIndex
	s.toCompact = 0
	s.writePos = newOffset

	return nil
}

func sortedKeys(index Index) []string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Close releases the store's open file handles and its directory lock.
func (s *Store) Close() error {
	writerErr := s.writer.Close()
	readerErr := s.reader.Close()

	var lockErr error
	if s.lock != nil {
		lockErr = s.lock.Close()
	}

	if writerErr != nil {
		return wrapErr(KindIO, "close writer", writerErr)
	}

	if readerErr != nil {
		return wrapErr(KindIO, "close reader", readerErr)
	}

	if lockErr != nil {
		return wrapErr(KindIO, "release store lock", lockErr)
	}

	return nil
}

// LogSize returns the current length of data.log, used by tests asserting
// the size bound from spec §8.1.
func (s *Store) LogSize() (int64, error) {
	info, err := s.fs.Stat(filepath.Join(s.dir, logFileName))
	if err != nil {
		return 0, wrapErr(KindIO, "stat log", err)
	}

	return info.Size(), nil
}

// IndexLen returns the number of live keys, used by tests.
func (s *Store) IndexLen() int { return len(s.index) }

var _ Engine = (*Store)(nil)
var _ error = (*Error)(nil)
