package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/example/quality-check/internal/repository"
)

// HistorySummary aggregates the stored analyses.
type HistorySummary struct {
	TotalRecords      int     `json:"totalRecords"`
	GoodRecords       int     `json:"goodRecords"`
	GoodRate          float64 `json:"goodRate"`
	AverageConfidence string  `json:"averageConfidence"`
	LatestUploadDate  string  `json:"latestUploadDate,omitempty"`
}

// Summary aggregates the full history.
func (uc *HistoryUseCase) Summary(ctx context.Context) (*HistorySummary, error) {
	records, err := uc.History(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Summarize expects records sorted newest first.
func Summarize(records []repository.AnalysisRecord) *HistorySummary {
	summary := &HistorySummary{
		TotalRecords:      len(records),
		AverageConfidence: "0",
	}
	if len(records) == 0 {
		return summary
	}

	total := decimal.Zero
	for _, record := range records {
		summary.GoodRecords += record.RawPrediction
		total = total.Add(record.Confidence.Decimal())
	}
	summary.GoodRate = float64(summary.GoodRecords) / float64(summary.TotalRecords)
	summary.AverageConfidence = total.DivRound(decimal.NewFromInt(int64(len(records))), 4).String()
	summary.LatestUploadDate = records[0].UploadDate
	return summary
}
