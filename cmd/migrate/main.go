package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <upgrade-state <state-file> | merge <dst-state-file> <src-state-file>>")
	}

	command := os.Args[1]
	switch command {
	case "upgrade-state":
		if err := withLock(os.Args[2], func() error { return upgradeState(os.Args[2], time.Local) }); err != nil {
			log.Fatal(err)
		}
	case "merge":
		if len(os.Args) < 4 {
			log.Fatal("Usage: migrate merge <dst-state-file> <src-state-file>")
		}
		dst, src := os.Args[2], os.Args[3]
		reader := bufio.NewReader(os.Stdin)
		if err := withLock(dst, func() error { return mergeStates(dst, src, reader, os.Stdout) }); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// record mirrors one tracked video. ProcessedAt stays a string so legacy values survive decoding.
type record struct {
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	ProcessedAt string `json:"processed_at"`
}

type state struct {
	Videos map[string]record `json:"videos"`
}

// legacyLayouts are the timestamp shapes written by older trackers (Python isoformat).
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// normalizeTimestamp returns value as RFC3339. Values without a zone are read in loc.
func normalizeTimestamp(value string, loc *time.Location) (string, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.Format(time.RFC3339Nano), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.Format(time.RFC3339Nano), nil
		}
	}
	return "", fmt.Errorf("unrecognized timestamp %q", value)
}

func upgradeState(path string, loc *time.Location) error {
	s, err := readState(path)
	if err != nil {
		return err
	}

	upgraded := 0
	for id, rec := range s.Videos {
		normalized, err := normalizeTimestamp(rec.ProcessedAt, loc)
		if err != nil {
			return fmt.Errorf("video %s: %w", id, err)
		}
		if normalized != rec.ProcessedAt {
			rec.ProcessedAt = normalized
			s.Videos[id] = rec
			upgraded++
		}
	}

	if upgraded == 0 {
		log.Printf("%s is already up to date (%d videos)", path, len(s.Videos))
		return nil
	}
	if err := writeState(path, s); err != nil {
		return err
	}
	log.Printf("Upgraded %d of %d timestamps in %s", upgraded, len(s.Videos), path)
	return nil
}

// mergeStates copies videos missing from dst out of src. Conflicting ids keep the dst record.
func mergeStates(dst, src string, reader *bufio.Reader, out io.Writer) error {
	target, err := readState(dst)
	if err != nil {
		return err
	}
	source, err := readState(src)
	if err != nil {
		return err
	}

	var missing []string
	for id := range source.Videos {
		if _, ok := target.Videos[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	if len(missing) == 0 {
		fmt.Fprintf(out, "Nothing to merge: every video in %s is already in %s\n", src, dst)
		return nil
	}

	fmt.Fprintf(out, "\n%d videos from %s are missing in %s:\n", len(missing), src, dst)
	for _, id := range missing {
		rec := source.Videos[id]
		fmt.Fprintf(out, "  %s  %s (%s)\n", id, rec.Title, rec.Channel)
	}
	if !confirm(reader, out, fmt.Sprintf("Merge them into %s?", filepath.Base(dst))) {
		fmt.Fprintln(out, "Aborted")
		return nil
	}

	for _, id := range missing {
		rec := source.Videos[id]
		normalized, err := normalizeTimestamp(rec.ProcessedAt, time.Local)
		if err != nil {
			return fmt.Errorf("video %s: %w", id, err)
		}
		rec.ProcessedAt = normalized
		target.Videos[id] = rec
	}
	if err := writeState(dst, target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Merged %d videos into %s\n", len(missing), dst)
	return nil
}

func readState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Videos == nil {
		s.Videos = make(map[string]record)
	}
	return &s, nil
}

// writeState replaces path atomically via a temp file in the same directory.
func writeState(path string, s *state) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".video-digest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// withLock holds the same run lock as video-digest so a migration never races a run.
func withLock(statePath string, fn func() error) error {
	lock := flock.New(statePath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s is locked by a running video-digest", statePath)
	}
	defer lock.Unlock()
	return fn()
}

func confirm(reader *bufio.Reader, out io.Writer, question string) bool {
	for {
		fmt.Fprintf(out, "%s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if err != io.EOF {
				log.Printf("Error reading input: %v", err)
			}
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "Please enter y or n.")
		}
	}
}
