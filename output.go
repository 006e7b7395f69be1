package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/example/quality-check/internal/prediction"
	"github.com/example/quality-check/internal/repository"
	"github.com/example/quality-check/internal/usecase"
)

// Output formats accepted by the history command.
const (
	outputJSON  = "json"
	outputTable = "table"
)

var (
	goodColor = color.New(color.FgGreen, color.Bold)
	badColor  = color.New(color.FgRed)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(status string) string {
	if prediction.RawPredictionFor(status) == 1 {
		return goodColor.Sprint(status)
	}
	return badColor.Sprint(status)
}

func writeHistoryTable(w io.Writer, records []repository.AnalysisRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Uploaded", "Image", "Status", "Confidence"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(records))
	for i, r := range records {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			r.UploadDate,
			r.ImageKey,
			statusLabel(r.Status),
			r.Confidence.String(),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeSummaryTable(w io.Writer, s *usecase.HistorySummary) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Metric", "Value"})
	rows := [][]string{
		{"Total records", strconv.Itoa(s.TotalRecords)},
		{"Good records", strconv.Itoa(s.GoodRecords)},
		{"Good rate", strconv.FormatFloat(s.GoodRate, 'f', 4, 64)},
		{"Average confidence", s.AverageConfidence},
		{"Latest upload", s.LatestUploadDate},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func validateOutput(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case outputJSON, outputTable:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output %q (want %s or %s)", format, outputJSON, outputTable)
	}
}
