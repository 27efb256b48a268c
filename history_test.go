package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSortedRecords(t *testing.T) {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tracked := map[string]DeliveryRecord{
		"old":  {ProcessedAt: base},
		"new":  {ProcessedAt: base.Add(48 * time.Hour)},
		"tieB": {ProcessedAt: base.Add(24 * time.Hour)},
		"tieA": {ProcessedAt: base.Add(24 * time.Hour)},
	}

	var ids []string
	for _, rec := range sortedRecords(tracked) {
		ids = append(ids, rec.VideoID)
	}
	if want := []string{"new", "tieA", "tieB", "old"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("sortedRecords() order = %v, want %v", ids, want)
	}
}

func TestRenderHistory(t *testing.T) {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tracked := map[string]DeliveryRecord{
		"vid1": {Title: "First talk", ChannelName: "Chan One", ProcessedAt: base},
		"vid2": {Title: "Second talk", ChannelName: "Chan Two", ProcessedAt: base.Add(time.Hour)},
		"vid3": {Title: "Third talk", ChannelName: "Chan Three", ProcessedAt: base.Add(2 * time.Hour)},
	}

	out := renderHistory(tracked, 2)
	for _, want := range []string{"Delivered", "Channel", "Third talk", "Second talk", "2 of 3 delivered videos"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderHistory() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "First talk") {
		t.Errorf("renderHistory() ignored the limit:\n%s", out)
	}

	if all := renderHistory(tracked, 0); !strings.Contains(all, "First talk") {
		t.Errorf("renderHistory(limit 0) should list everything:\n%s", all)
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	if got := renderHistory(nil, 10); got != "No videos delivered yet.\n" {
		t.Errorf("renderHistory(nil) = %q", got)
	}
}

func TestRenderStagesAndDropped(t *testing.T) {
	stages := []StageSummary{
		{Stage: "transcript", In: 3, Out: 2, Dropped: []DroppedItem{{VideoID: "C"}}},
		{Stage: "article", In: 2, Out: 2},
	}
	out := renderStages(stages)
	for _, want := range []string{"transcript", "article", "Dropped"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderStages() missing %q:\n%s", want, out)
		}
	}

	dropped := []DroppedItem{
		{Stage: "transcript", VideoID: "C", Title: "Gamma", Reason: DropAbsent},
		{Stage: "article", VideoID: "D", Title: "Delta", Reason: DropFailed, Err: errors.New("overloaded")},
	}
	out = renderDropped(dropped)
	for _, want := range []string{"absent", "failed", "overloaded", "Gamma"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderDropped() missing %q:\n%s", want, out)
		}
	}

	if renderStages(nil) != "" || renderDropped(nil) != "" {
		t.Error("empty inputs should render nothing")
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") {
		t.Errorf("renderTable() = %s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("renderTable() without headers should be empty")
	}
}
