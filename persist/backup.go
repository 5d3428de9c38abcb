package persist

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/store"
)

// backupEntry is a single append-only line in the file backup, grounded
// on the teacher's WALEntry (storage/binary/wal.go): a checksummed
// envelope that can be replayed or drained in order. The teacher used
// SHA256; this uses blake2b (golang.org/x/crypto), the hash package the
// teacher's own go.mod already pulls in alongside sha256, so the backup
// path exercises rather than abandons that dependency.
type backupEntry struct {
	Event    models.Event `json:"event"`
	Checksum string       `json:"checksum"`
}

func checksum(e models.Event) string {
	data, _ := json.Marshal(e)
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileBackupPersister is an append-only, file-based secondary persister
// (§4.5's "redundant backup"). It never errors on PersistEvents except
// for I/O failure — it has no duplicate-detection of its own; idempotent
// re-application is the SQL primary's job once entries are drained into
// it.
type FileBackupPersister struct {
	mu   sync.Mutex
	path string
}

// NewFileBackupPersister opens (creating if necessary) the backup file
// at dir/backup.log.
func NewFileBackupPersister(dir string) (*FileBackupPersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, models.Wrap(models.CodeArgument, err, "creating backup directory")
	}
	return &FileBackupPersister{path: filepath.Join(dir, "backup.log")}, nil
}

// PersistEvents appends events to the backup log, one JSON line per
// event, each carrying a blake2b checksum of its contents.
func (f *FileBackupPersister) PersistEvents(events []models.Event, _ bool) error {
	if len(events) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return models.Wrap(models.CodeArgument, err, "opening backup log")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, e := range events {
		entry := backupEntry{Event: e, Checksum: checksum(e)}
		line, err := json.Marshal(entry)
		if err != nil {
			return models.Wrap(models.CodeArgument, err, "marshalling backup entry")
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return models.Wrap(models.CodeArgument, err, "writing backup entry")
		}
	}
	if err := w.Flush(); err != nil {
		return models.Wrap(models.CodeArgument, err, "flushing backup log")
	}
	logger.Debug("[FileBackupPersister] appended %d events to backup log", len(events))
	return nil
}

// Load replays the backup log in file order. Boundary filtering beyond
// "latest" is not supported by the backup path — it exists purely to
// survive a primary outage, not to serve as a long-term query surface.
func (f *FileBackupPersister) Load(target *store.Store, _ LoadBoundary) (LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return LoadResult{}, models.ErrStorageEmpty
	}
	if err != nil {
		return LoadResult{}, models.Wrap(models.CodeArgument, err, "opening backup log")
	}
	defer file.Close()

	var result LoadResult
	scanner := bufio.NewScanner(file)
	count := 0
	for scanner.Scan() {
		var entry backupEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return LoadResult{}, models.Wrap(models.CodeArgument, err, "unmarshalling backup entry")
		}
		if got := checksum(entry.Event); got != entry.Checksum {
			return LoadResult{}, models.NewError(models.CodeArgument, fmt.Sprintf("backup entry %s failed checksum", entry.Event.ID))
		}
		if err := target.Apply(entry.Event); err != nil {
			return LoadResult{}, models.Wrap(models.CodeArgument, err, fmt.Sprintf("replaying backup event %s", entry.Event.ID))
		}
		result.BoundaryEventID = entry.Event.ID
		result.BoundaryTimestamp = entry.Event.OccurredAt
		count++
	}
	if count == 0 {
		return LoadResult{}, models.ErrStorageEmpty
	}
	return result, nil
}

// Drain reads every entry currently in the backup log, in order,
// without deleting or replaying them, and returns the events together
// with the byte offset of the snapshot it read up to. It does NOT
// remove anything from the log — the caller (RedundantPersister) must
// call AckDrain(offset) once, and only once, the drained events have
// been durably persisted elsewhere. §4.5 specifies "read, write,
// delete" in that order: deleting here, before the caller's write is
// confirmed, would permanently lose every drained event if the process
// died (or the primary write failed) between the two calls, since
// neither the backup log nor the primary would hold a copy anymore.
func (f *FileBackupPersister) Drain() ([]models.Event, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, models.Wrap(models.CodeArgument, err, "opening backup log for drain")
	}
	defer file.Close()

	var events []models.Event
	var offset int64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		offset += int64(len(line)) + 1 // +1 for the newline Write appended
		var entry backupEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, 0, models.Wrap(models.CodeArgument, err, "unmarshalling backup entry during drain")
		}
		events = append(events, entry.Event)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, models.Wrap(models.CodeArgument, err, "scanning backup log during drain")
	}
	return events, offset, nil
}

// AckDrain removes the first upToOffset bytes of the backup log — the
// prefix a prior Drain call returned and the caller has since durably
// persisted — leaving any entry appended after that Drain snapshot (by
// a concurrent PersistEvents call still hitting the backup path)
// untouched. If the whole log has since been consumed, the file is
// removed outright; otherwise it is rewritten to just its remainder.
func (f *FileBackupPersister) AckDrain(upToOffset int64) error {
	if upToOffset <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return models.Wrap(models.CodeArgument, err, "reading backup log for ack")
	}
	if upToOffset >= int64(len(data)) {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return models.Wrap(models.CodeArgument, err, "removing drained backup log")
		}
		return nil
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data[upToOffset:], 0644); err != nil {
		return models.Wrap(models.CodeArgument, err, "writing trimmed backup log")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return models.Wrap(models.CodeArgument, err, "replacing backup log with trimmed copy")
	}
	return nil
}

// Close is a no-op; the backup log is opened and closed per operation.
func (f *FileBackupPersister) Close() error { return nil }
