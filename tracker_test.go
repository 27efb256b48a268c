package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTrackingStoreLoadMissingFile(t *testing.T) {
	store := NewTrackingStore(filepath.Join(t.TempDir(), "processed_videos.json"))

	videos, err := store.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(videos) != 0 {
		t.Errorf("Load() = %d videos, want 0", len(videos))
	}
}

func TestTrackingStoreLoad(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "empty videos",
			content:   `{"videos": {}}`,
			wantCount: 0,
		},
		{
			name:      "empty object",
			content:   `{}`,
			wantCount: 0,
		},
		{
			name:      "null videos",
			content:   `{"videos": null}`,
			wantCount: 0,
		},
		{
			name: "two videos",
			content: `{"videos": {
				"A": {"title": "Alpha", "channel": "Chan", "processed_at": "2025-01-15T10:30:45Z"},
				"B": {"title": "Beta", "channel": "Chan", "processed_at": "2025-01-16T08:00:00+02:00"}
			}}`,
			wantCount: 2,
		},
		{
			name:    "truncated json",
			content: `{"videos": {"A": {"title": "Al`,
			wantErr: true,
		},
		{
			name:      "zoneless timestamps",
			content:   `{"videos": {"A": {"title": "Alpha", "channel": "Chan", "processed_at": "2025-01-15T10:30:45.123456"}, "B": {"title": "Beta", "channel": "Chan", "processed_at": "2025-01-15 10:30:45"}}}`,
			wantCount: 2,
		},
		{
			name:    "unparseable timestamp",
			content: `{"videos": {"A": {"title": "Alpha", "channel": "Chan", "processed_at": "last tuesday"}}}`,
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			content: `{"videos": {"A": {"title": "Alpha", "channel": "Chan"}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			videos, err := NewTrackingStore(path).Load()
			if tt.wantErr {
				if !errors.Is(err, ErrStateCorrupt) {
					t.Fatalf("Load() error = %v, want ErrStateCorrupt", err)
				}
				var stateErr *StateError
				if !errors.As(err, &stateErr) || stateErr.Op != "parse" || stateErr.Path != path {
					t.Errorf("Load() error = %#v, want *StateError{Op: parse, Path: %s}", err, path)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if len(videos) != tt.wantCount {
				t.Errorf("Load() = %d videos, want %d", len(videos), tt.wantCount)
			}
			for id, rec := range videos {
				if rec.VideoID != id {
					t.Errorf("record %s has VideoID %q", id, rec.VideoID)
				}
			}
		})
	}
}

func TestTrackingStoreZonelessTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"videos": {"A": {"title": "Alpha", "channel": "Chan", "processed_at": "2025-01-15T10:30:45.123456"}}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewTrackingStore(path)

	videos, err := store.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	want := time.Date(2025, 1, 15, 10, 30, 45, 123456000, time.Local)
	if got := videos["A"]; !got.ProcessedAt.Equal(want) || got.Title != "Alpha" || got.ChannelName != "Chan" {
		t.Errorf("record = %+v, want Alpha/Chan at %v", got, want)
	}

	// the next commit rewrites every record with an offset
	if err := store.Commit([]DeliveryRecord{{VideoID: "B", ProcessedAt: time.Now()}}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), `"2025-01-15T10:30:45.123456"`) {
		t.Errorf("zoneless timestamp kept after commit:\n%s", data)
	}
	videos, err = store.Load()
	if err != nil || !videos["A"].ProcessedAt.Equal(want) {
		t.Errorf("reloaded A = %+v, %v", videos["A"], err)
	}
}

func TestTrackingStoreCommitMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewTrackingStore(path)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.Commit([]DeliveryRecord{{VideoID: "A", Title: "Alpha", ChannelName: "One", ProcessedAt: at}}); err != nil {
		t.Fatalf("Commit() unexpected error: %v", err)
	}
	if err := store.Commit([]DeliveryRecord{
		{VideoID: "B", Title: "Beta", ChannelName: "Two", ProcessedAt: at.Add(time.Hour)},
		{VideoID: "A", Title: "Alpha v2", ChannelName: "One", ProcessedAt: at.Add(2 * time.Hour)},
	}); err != nil {
		t.Fatalf("Commit() unexpected error: %v", err)
	}

	videos, err := store.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("Load() = %d videos, want 2", len(videos))
	}
	if got := videos["A"]; got.Title != "Alpha v2" || !got.ProcessedAt.Equal(at.Add(2*time.Hour)) {
		t.Errorf("record A = %+v, want overwritten record", got)
	}
	if got := videos["B"]; got.ChannelName != "Two" {
		t.Errorf("record B channel = %q, want %q", got.ChannelName, "Two")
	}
}

func TestTrackingStoreCommitFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewTrackingStore(path)
	at := time.Date(2025, 1, 15, 10, 30, 45, 0, time.UTC)

	if err := store.Commit([]DeliveryRecord{{VideoID: "abc123", Title: "T", ChannelName: "C", ProcessedAt: at}}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `{
  "videos": {
    "abc123": {
      "title": "T",
      "channel": "C",
      "processed_at": "2025-01-15T10:30:45Z"
    }
  }
}
`
	if string(data) != want {
		t.Errorf("state file =\n%s\nwant\n%s", data, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestTrackingStoreCommitEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewTrackingStore(path)

	if err := store.Commit(nil); err != nil {
		t.Fatalf("Commit(nil) unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Commit(nil) created the state file (stat err = %v)", err)
	}
}

func TestTrackingStoreCommitRejectsEmptyID(t *testing.T) {
	store := NewTrackingStore(filepath.Join(t.TempDir(), "state.json"))

	err := store.Commit([]DeliveryRecord{{Title: "no id"}})
	var stateErr *StateError
	if !errors.As(err, &stateErr) || stateErr.Op != "commit" {
		t.Errorf("Commit() error = %v, want commit StateError", err)
	}
}

func TestTrackingStoreCommitOnCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	corrupt := []byte("not json")
	if err := os.WriteFile(path, corrupt, 0644); err != nil {
		t.Fatal(err)
	}

	err := NewTrackingStore(path).Commit([]DeliveryRecord{{VideoID: "A", ProcessedAt: time.Now()}})
	if !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("Commit() error = %v, want ErrStateCorrupt", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(corrupt) {
		t.Errorf("corrupt state file was overwritten: %q", data)
	}
}

func TestTrackingStoreCount(t *testing.T) {
	store := NewTrackingStore(filepath.Join(t.TempDir(), "state.json"))
	now := time.Now()
	if err := store.Commit([]DeliveryRecord{{VideoID: "A", ProcessedAt: now}, {VideoID: "B", ProcessedAt: now}}); err != nil {
		t.Fatal(err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count() unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestTrackingStoreLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed_videos.json")
	first := NewTrackingStore(path)
	second := NewTrackingStore(path)

	unlock, err := first.Lock()
	if err != nil {
		t.Fatalf("Lock() unexpected error: %v", err)
	}

	if _, err := second.Lock(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Lock() error = %v, want ErrRunInProgress", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock() unexpected error: %v", err)
	}

	unlock2, err := second.Lock()
	if err != nil {
		t.Fatalf("Lock() after release unexpected error: %v", err)
	}
	unlock2()
}
