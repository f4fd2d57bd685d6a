package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DatasetCampaigns   = "campaigns"
	DatasetAdGroups    = "ad_groups"
	DatasetKeywords    = "keywords"
	DatasetSearchTerms = "search_terms"

	insertBatchSize = 500
)

var datasets = []string{DatasetCampaigns, DatasetAdGroups, DatasetKeywords, DatasetSearchTerms}

var customerIDPattern = regexp.MustCompile(`^\d{10}$`)

// NormalizeCustomerID accepts "1234567890" or "123-456-7890" and returns the dashed form.
func NormalizeCustomerID(raw string) (string, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	if !customerIDPattern.MatchString(digits) {
		return "", fmt.Errorf("%w: customer id %q must have 10 digits", ErrValidation, raw)
	}
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:], nil
}

// IngestService accumulates dataset chunks uploaded by the Google Ads script and, once a run
// is complete, swaps them in as the account's snapshot.
type IngestService struct {
	DB  *gorm.DB
	Log *zap.Logger
	Now func() time.Time

	// OnComplete runs after a run has been committed, e.g. to trigger analysis.
	OnComplete func(ctx context.Context, accountID uint)
}

func NewIngestService(db *gorm.DB, log *zap.Logger) *IngestService {
	return &IngestService{DB: db, Log: log, Now: time.Now}
}

func (s *IngestService) StartRun(req *dtos.RunStartRequest) (*models.IngestRun, error) {
	customerID, err := NormalizeCustomerID(req.CustomerID)
	if err != nil {
		return nil, err
	}

	var run *models.IngestRun
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		attrs := models.Account{Name: req.AccountName, CurrencyCode: strings.ToUpper(req.CurrencyCode), TimeZone: req.TimeZone}

		var account models.Account
		err := tx.Where("customer_id = ?", customerID).First(&account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			account = attrs
			account.CustomerID = customerID
			if err := tx.Create(&account).Error; err != nil {
				return fmt.Errorf("creating account %s: %w", customerID, err)
			}
		case err != nil:
			return fmt.Errorf("loading account %s: %w", customerID, err)
		default:
			if updates := nonEmpty(attrs); len(updates) > 0 {
				if err := tx.Model(&account).Updates(updates).Error; err != nil {
					return fmt.Errorf("updating account %s: %w", customerID, err)
				}
			}
		}

		run = &models.IngestRun{
			ID:        uuid.NewString(),
			AccountID: account.ID,
			Status:    models.RunReceiving,
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("creating run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("ingest run started", zap.String("run_id", run.ID), zap.String("customer_id", customerID))
	return run, nil
}

// nonEmpty keeps only the account attributes the script actually sent, so a sparse start
// request does not blank out what an earlier run stored.
func nonEmpty(a models.Account) map[string]interface{} {
	out := map[string]interface{}{}
	if a.Name != "" {
		out["name"] = a.Name
	}
	if a.CurrencyCode != "" {
		out["currency_code"] = a.CurrencyCode
	}
	if a.TimeZone != "" {
		out["time_zone"] = a.TimeZone
	}
	return out
}

// AppendChunk stores one chunk. Sending the same (run, dataset, index) again replaces it.
func (s *IngestService) AppendChunk(runID string, req *dtos.ChunkRequest) (*models.DatasetChunk, error) {
	if !knownDataset(req.Dataset) {
		return nil, fmt.Errorf("%w: unknown dataset %q", ErrValidation, req.Dataset)
	}
	if req.ChunkIndex == nil || *req.ChunkIndex < 0 || *req.ChunkIndex >= req.TotalChunks {
		return nil, fmt.Errorf("%w: chunk_index must be within [0, total_chunks)", ErrValidation)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(req.Rows, &rows); err != nil {
		return nil, fmt.Errorf("%w: rows must be a JSON array: %v", ErrValidation, err)
	}

	chunk := &models.DatasetChunk{
		RunID:       runID,
		Dataset:     req.Dataset,
		ChunkIndex:  *req.ChunkIndex,
		TotalChunks: req.TotalChunks,
		RowCount:    len(rows),
		Rows:        string(req.Rows),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}
		if run.Status != models.RunReceiving {
			return fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, runID, run.Status)
		}

		var other models.DatasetChunk
		err = tx.Where("run_id = ? AND dataset = ? AND chunk_index <> ?", runID, req.Dataset, chunk.ChunkIndex).
			First(&other).Error
		if err == nil && other.TotalChunks != req.TotalChunks {
			return fmt.Errorf("%w: %s already announced %d chunks, got %d",
				ErrConflict, req.Dataset, other.TotalChunks, req.TotalChunks)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("checking chunk total: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "dataset"}, {Name: "chunk_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_chunks", "row_count", "rows", "updated_at"}),
		}).Create(chunk).Error
		if err != nil {
			return fmt.Errorf("storing chunk: %w", err)
		}
		return tx.Model(&models.IngestRun{}).Where("id = ?", runID).Update("updated_at", s.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *IngestService) GetRun(runID string) (*dtos.RunStatusResponse, error) {
	run, err := loadRun(s.DB.Preload("Account"), runID)
	if err != nil {
		return nil, err
	}

	var progress []dtos.DatasetProgress
	err = s.DB.Model(&models.DatasetChunk{}).
		Select("dataset, COUNT(*) AS received, MAX(total_chunks) AS total, SUM(row_count) AS row_count").
		Where("run_id = ?", runID).
		Group("dataset").Order("dataset").
		Scan(&progress).Error
	if err != nil {
		return nil, fmt.Errorf("summarising chunks: %w", err)
	}

	return &dtos.RunStatusResponse{IngestRun: *run, CustomerID: run.Account.CustomerID, Datasets: progress}, nil
}

// CompleteRun verifies every announced chunk arrived and replaces the account snapshot of each
// dataset the run carried. Datasets the run did not send keep their previous rows.
func (s *IngestService) CompleteRun(ctx context.Context, runID string) (*models.IngestRun, error) {
	run, err := loadRun(s.DB, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunReceiving {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, runID, run.Status)
	}

	var chunks []models.DatasetChunk
	if err := s.DB.Where("run_id = ?", runID).Order("dataset, chunk_index").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: run %s has no data", ErrValidation, runID)
	}

	grouped := groupChunks(chunks)
	if missing := missingChunks(grouped); len(missing) > 0 {
		return nil, fmt.Errorf("%w: incomplete datasets: %s", ErrValidation, strings.Join(missing, "; "))
	}

	snapshot, err := decodeSnapshot(run.AccountID, grouped)
	if err != nil {
		s.failRun(runID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.IngestRun{}).
			Where("id = ? AND status = ?", runID, models.RunReceiving).
			Updates(map[string]interface{}{"status": models.RunCompleted, "completed_at": now})
		if res.Error != nil {
			return fmt.Errorf("completing run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: run %s was completed concurrently", ErrInvalidTransition, runID)
		}

		if err := snapshot.replace(tx, run.AccountID); err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", run.AccountID).Update("last_ingested_at", now).Error; err != nil {
			return fmt.Errorf("stamping account: %w", err)
		}
		return tx.Where("run_id = ?", runID).Delete(&models.DatasetChunk{}).Error
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("ingest run completed",
		zap.String("run_id", runID),
		zap.Int("campaigns", len(snapshot.campaigns)),
		zap.Int("ad_groups", len(snapshot.adGroups)),
		zap.Int("keywords", len(snapshot.keywords)),
		zap.Int("search_terms", len(snapshot.searchTerms)))

	if s.OnComplete != nil {
		s.OnComplete(ctx, run.AccountID)
	}
	return loadRun(s.DB, runID)
}

// ExpireStaleRuns fails runs that never completed within ttl and drops their chunks.
func (s *IngestService) ExpireStaleRuns(ttl time.Duration) (int, error) {
	cutoff := s.Now().Add(-ttl)

	var stale []models.IngestRun
	if err := s.DB.Where("status = ? AND updated_at < ?", models.RunReceiving, cutoff).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("finding stale runs: %w", err)
	}
	for _, run := range stale {
		s.failRun(run.ID, fmt.Sprintf("expired after %s without completion", ttl))
	}
	if len(stale) > 0 {
		s.Log.Warn("expired stale ingest runs", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}

func (s *IngestService) failRun(runID, reason string) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.IngestRun{}).Where("id = ? AND status = ?", runID, models.RunReceiving).
			Updates(map[string]interface{}{"status": models.RunFailed, "error": reason}).Error
		if err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&models.DatasetChunk{}).Error
	})
	if err != nil {
		s.Log.Error("failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	s.Log.Warn("ingest run failed", zap.String("run_id", runID), zap.String("reason", reason))
}

func loadRun(db *gorm.DB, runID string) (*models.IngestRun, error) {
	var run models.IngestRun
	if err := db.Where("id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return &run, nil
}

func knownDataset(name string) bool {
	for _, d := range datasets {
		if d == name {
			return true
		}
	}
	return false
}

func groupChunks(chunks []models.DatasetChunk) map[string][]models.DatasetChunk {
	grouped := map[string][]models.DatasetChunk{}
	for _, c := range chunks {
		grouped[c.Dataset] = append(grouped[c.Dataset], c)
	}
	for _, list := range grouped {
		sort.Slice(list, func(i, j int) bool { return list[i].ChunkIndex < list[j].ChunkIndex })
	}
	return grouped
}

// missingChunks describes every dataset whose chunk sequence has gaps.
func missingChunks(grouped map[string][]models.DatasetChunk) []string {
	var problems []string
	for _, name := range datasets {
		list, ok := grouped[name]
		if !ok {
			continue
		}
		total := list[0].TotalChunks
		have := make(map[int]bool, len(list))
		for _, c := range list {
			have[c.ChunkIndex] = true
		}
		var missing []string
		for i := 0; i < total; i++ {
			if !have[i] {
				missing = append(missing, fmt.Sprint(i))
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s missing chunks [%s] of %d", name, strings.Join(missing, " "), total))
		}
	}
	return problems
}

// snapshot holds decoded rows. A nil slice means the dataset was not part of the run.
type snapshot struct {
	campaigns   []models.Campaign
	adGroups    []models.AdGroup
	keywords    []models.Keyword
	searchTerms []models.SearchTerm
}

func decodeRows[T any](dataset string, chunks []models.DatasetChunk) ([]T, error) {
	out := []T{}
	for _, c := range chunks {
		var rows []T
		if err := json.Unmarshal([]byte(c.Rows), &rows); err != nil {
			return nil, fmt.Errorf("%s chunk %d: %v", dataset, c.ChunkIndex, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func decodeSnapshot(accountID uint, grouped map[string][]models.DatasetChunk) (*snapshot, error) {
	snap := &snapshot{}

	if chunks, ok := grouped[DatasetCampaigns]; ok {
		rows, err := decodeRows[dtos.CampaignRow](DatasetCampaigns, chunks)
		if err != nil {
			return nil, err
		}
		snap.campaigns = make([]models.Campaign, 0, len(rows))
		for i, r := range rows {
			if r.ID == "" {
				return nil, fmt.Errorf("campaigns row %d: id is required", i)
			}
			snap.campaigns = append(snap.campaigns, models.Campaign{
				AccountID: accountID, ExternalID: r.ID, Name: r.Name, Status: normalizeStatus(r.Status),
				ChannelType: r.ChannelType, BudgetMicros: r.BudgetMicros,
				SearchImpressionShare: r.SearchImpressionShare, BudgetLostImpressionShare: r.BudgetLostImpressionShare,
				Metrics: r.Metrics,
			})
		}
	}

	if chunks, ok := grouped[DatasetAdGroups]; ok {
		rows, err := decodeRows[dtos.AdGroupRow](DatasetAdGroups, chunks)
		if err != nil {
			return nil, err
		}
		snap.adGroups = make([]models.AdGroup, 0, len(rows))
		for i, r := range rows {
			if r.ID == "" {
				return nil, fmt.Errorf("ad_groups row %d: id is required", i)
			}
			snap.adGroups = append(snap.adGroups, models.AdGroup{
				AccountID: accountID, CampaignExternalID: r.CampaignID, ExternalID: r.ID, Name: r.Name,
				Status: normalizeStatus(r.Status), Metrics: r.Metrics,
			})
		}
	}

	if chunks, ok := grouped[DatasetKeywords]; ok {
		rows, err := decodeRows[dtos.KeywordRow](DatasetKeywords, chunks)
		if err != nil {
			return nil, err
		}
		snap.keywords = make([]models.Keyword, 0, len(rows))
		for i, r := range rows {
			if r.ID == "" || strings.TrimSpace(r.Text) == "" {
				return nil, fmt.Errorf("keywords row %d: id and text are required", i)
			}
			snap.keywords = append(snap.keywords, models.Keyword{
				AccountID: accountID, CampaignExternalID: r.CampaignID, AdGroupExternalID: r.AdGroupID,
				ExternalID: r.ID, Text: r.Text, MatchType: strings.ToLower(r.MatchType),
				Status: normalizeStatus(r.Status), QualityScore: r.QualityScore, CPCBidMicros: r.CPCBidMicros,
				Metrics: r.Metrics,
			})
		}
	}

	if chunks, ok := grouped[DatasetSearchTerms]; ok {
		rows, err := decodeRows[dtos.SearchTermRow](DatasetSearchTerms, chunks)
		if err != nil {
			return nil, err
		}
		snap.searchTerms = make([]models.SearchTerm, 0, len(rows))
		for i, r := range rows {
			if strings.TrimSpace(r.Term) == "" {
				return nil, fmt.Errorf("search_terms row %d: term is required", i)
			}
			snap.searchTerms = append(snap.searchTerms, models.SearchTerm{
				AccountID: accountID, CampaignExternalID: r.CampaignID, AdGroupExternalID: r.AdGroupID,
				Term: r.Term, Metrics: r.Metrics,
			})
		}
	}
	return snap, nil
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func replaceTable[T any](tx *gorm.DB, accountID uint, rows []T) error {
	if rows == nil {
		return nil
	}
	var zero T
	if err := tx.Where("account_id = ?", accountID).Delete(&zero).Error; err != nil {
		return fmt.Errorf("clearing %T: %w", zero, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("inserting %T: %w", zero, err)
	}
	return nil
}

func (snap *snapshot) replace(tx *gorm.DB, accountID uint) error {
	if err := replaceTable(tx, accountID, snap.campaigns); err != nil {
		return err
	}
	if err := replaceTable(tx, accountID, snap.adGroups); err != nil {
		return err
	}
	if err := replaceTable(tx, accountID, snap.keywords); err != nil {
		return err
	}
	return replaceTable(tx, accountID, snap.searchTerms)
}
