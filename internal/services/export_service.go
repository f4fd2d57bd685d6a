package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"gorm.io/gorm"
)

const exportBatchSize = 500

var (
	recommendationColumns = []string{
		"id", "created_at", "analysis_id", "source", "rule_id", "severity", "entity_type",
		"entity_id", "title", "description", "action", "params", "status",
	}
	modificationColumns = []string{
		"id", "created_at", "account_id", "action", "entity_type", "entity_id", "params", "status",
		"requested_by", "reviewed_by", "review_note", "reviewed_at", "applied_at", "error_message", "attempts",
	}
)

// ExportService writes recommendations and modifications as CSV for spreadsheets.
// Filters match the list endpoints but are not paginated.
type ExportService struct {
	DB *gorm.DB
}

func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{DB: db}
}

func (s *ExportService) Recommendations(w io.Writer, filter dtos.RecommendationFilter) error {
	q := s.DB.Model(&models.Recommendation{}).Where("account_id = ?", filter.AccountID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}

	out := csv.NewWriter(w)
	if err := out.Write(recommendationColumns); err != nil {
		return err
	}
	var batch []models.Recommendation
	res := q.FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
		for _, r := range batch {
			record := []string{
				strconv.FormatUint(uint64(r.ID), 10), formatTime(&r.CreatedAt), r.AnalysisID, r.Source,
				r.RuleID, r.Severity, r.EntityType, r.EntityExternalID, r.Title, r.Description,
				r.Action, formatParams(r.Params), r.Status,
			}
			if err := out.Write(safeCells(record)); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("exporting recommendations: %w", res.Error)
	}
	out.Flush()
	return out.Error()
}

func (s *ExportService) Modifications(w io.Writer, filter dtos.ModificationFilter) error {
	q := s.DB.Model(&models.Modification{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		if !models.ValidStatus(filter.Status) {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}

	out := csv.NewWriter(w)
	if err := out.Write(modificationColumns); err != nil {
		return err
	}
	var batch []models.Modification
	res := q.FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
		for _, m := range batch {
			record := []string{
				strconv.FormatUint(uint64(m.ID), 10), formatTime(&m.CreatedAt),
				strconv.FormatUint(uint64(m.AccountID), 10), m.Action, m.EntityType, m.EntityExternalID,
				formatParams(m.Params), m.Status, m.RequestedBy, m.ReviewedBy, m.ReviewNote,
				formatTime(m.ReviewedAt), formatTime(m.AppliedAt), m.ErrorMessage, strconv.Itoa(m.Attempts),
			}
			if err := out.Write(safeCells(record)); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("exporting modifications: %w", res.Error)
	}
	out.Flush()
	return out.Error()
}

// safeCells quotes values a spreadsheet would otherwise evaluate as a formula.
func safeCells(record []string) []string {
	for i, v := range record {
		if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
			record[i] = "'" + v
		}
	}
	return record
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatParams(p models.JSONMap) string {
	if len(p) == 0 {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}
