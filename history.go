package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// sortedRecords returns records newest first; ties break on video id.
func sortedRecords(tracked map[string]DeliveryRecord) []DeliveryRecord {
	records := make([]DeliveryRecord, 0, len(tracked))
	for id, rec := range tracked {
		rec.VideoID = id
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ProcessedAt.Equal(records[j].ProcessedAt) {
			return records[i].ProcessedAt.After(records[j].ProcessedAt)
		}
		return records[i].VideoID < records[j].VideoID
	})
	return records
}

// renderHistory lists delivered videos. limit <= 0 shows all of them.
func renderHistory(tracked map[string]DeliveryRecord, limit int) string {
	if len(tracked) == 0 {
		return "No videos delivered yet.\n"
	}

	records := sortedRecords(tracked)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ProcessedAt.Local().Format(time.DateTime),
			rec.ChannelName,
			truncate(rec.Title, 60),
			rec.VideoID,
		})
	}
	out := renderTable([]string{"Delivered", "Channel", "Title", "Video"}, rows, nil)
	return out + fmt.Sprintf("\n%d of %d delivered videos\n", len(records), len(tracked))
}

// renderDropped lists the items a run left out of the digest.
func renderDropped(dropped []DroppedItem) string {
	if len(dropped) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(dropped))
	for _, d := range dropped {
		detail := ""
		if d.Err != nil {
			detail = truncate(d.Err.Error(), 60)
		}
		rows = append(rows, []string{d.Stage, d.VideoID, truncate(d.Title, 40), string(d.Reason), detail})
	}
	return renderTable([]string{"Stage", "Video", "Title", "Reason", "Detail"}, rows, nil) + "\n"
}

// renderStages shows how each stage narrowed the working set.
func renderStages(stages []StageSummary) string {
	if len(stages) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{s.Stage, fmt.Sprint(s.In), fmt.Sprint(s.Out), fmt.Sprint(len(s.Dropped))})
	}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight}
	return renderTable([]string{"Stage", "In", "Out", "Dropped"}, rows, aligns) + "\n"
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
