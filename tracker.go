package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrStateCorrupt means the tracking file exists but cannot be parsed.
	// Treating it as empty would re-deliver every tracked video, so callers must stop.
	ErrStateCorrupt = errors.New("tracking state corrupt")

	// ErrRunInProgress is returned when another process holds the run lock.
	ErrRunInProgress = errors.New("another run is in progress")
)

// StateError wraps failures reading or writing the tracking file.
type StateError struct {
	Op   string
	Path string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s tracking state %s: %v", e.Op, e.Path, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// stateFile is the on-disk layout of the tracking file.
type stateFile struct {
	Videos map[string]DeliveryRecord `json:"videos"`
}

// zonelessLayouts are timestamps without an offset, as written by older trackers.
// They are read in the local zone.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseProcessedAt accepts RFC3339 and the zoneless ISO-8601 forms.
func parseProcessedAt(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid processed_at %q", value)
}

func (r *DeliveryRecord) UnmarshalJSON(data []byte) error {
	type plain DeliveryRecord
	var raw struct {
		plain
		ProcessedAt string `json:"processed_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	at, err := parseProcessedAt(raw.ProcessedAt)
	if err != nil {
		return err
	}
	*r = DeliveryRecord(raw.plain)
	r.ProcessedAt = at
	return nil
}

// TrackingStore persists which videos were delivered. The whole mapping lives in one
// JSON file that is only ever replaced atomically.
type TrackingStore struct {
	path string
	lock *flock.Flock
}

// NewTrackingStore creates a store backed by the file at path.
func NewTrackingStore(path string) *TrackingStore {
	return &TrackingStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the tracking file location.
func (s *TrackingStore) Path() string {
	return s.path
}

// Load returns the persisted mapping. A missing file is the first-run condition and
// yields an empty mapping.
func (s *TrackingStore) Load() (map[string]DeliveryRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]DeliveryRecord), nil
		}
		return nil, &StateError{Op: "read", Path: s.path, Err: err}
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &StateError{Op: "parse", Path: s.path, Err: fmt.Errorf("%w: %v", ErrStateCorrupt, err)}
	}
	if state.Videos == nil {
		// `{}` or `{"videos": null}` carries no records but is still a valid file
		state.Videos = make(map[string]DeliveryRecord)
	}

	for id, rec := range state.Videos {
		rec.VideoID = id
		state.Videos[id] = rec
	}
	return state.Videos, nil
}

// Commit merges records into the persisted mapping and replaces the file in one step.
// A record for an id already present overwrites it.
func (s *TrackingStore) Commit(records []DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}

	videos, err := s.Load()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.VideoID == "" {
			return &StateError{Op: "commit", Path: s.path, Err: errors.New("record without video id")}
		}
		videos[rec.VideoID] = rec
	}

	data, err := json.MarshalIndent(stateFile{Videos: videos}, "", "  ")
	if err != nil {
		return &StateError{Op: "encode", Path: s.path, Err: err}
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.path, data); err != nil {
		return &StateError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Count returns the number of tracked videos.
func (s *TrackingStore) Count() (int, error) {
	videos, err := s.Load()
	if err != nil {
		return 0, err
	}
	return len(videos), nil
}

// Lock takes the advisory run lock. It fails fast instead of waiting.
func (s *TrackingStore) Lock() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrRunInProgress, s.lock.Path())
	}
	return s.lock.Unlock, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and renames it over
// path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".video-digest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
