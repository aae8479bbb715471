package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// callRecordModel maps to the 'model_calls' table.
type callRecordModel struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp        time.Time `gorm:"column:timestamp;index"`
	Model            string    `gorm:"column:model;index"`
	Tier             string    `gorm:"column:tier;index"`
	TaskType         string    `gorm:"column:task_type"`
	PromptTokens     int       `gorm:"column:prompt_tokens"`
	CompletionTokens int       `gorm:"column:completion_tokens"`
	TotalTokens      int       `gorm:"column:total_tokens"`
	CostUSD          float64   `gorm:"column:cost_usd"`
	DurationMS       int64     `gorm:"column:duration_ms"`
	Status           string    `gorm:"column:status"`
	ErrorMessage     string    `gorm:"column:error_message"`
	SessionID        string    `gorm:"column:session_id;index"`
	RequestID        string    `gorm:"column:request_id"`
}

func (callRecordModel) TableName() string { return "model_calls" }

func toModel(r Record) callRecordModel {
	return callRecordModel{
		Timestamp:        r.Timestamp.UTC(),
		Model:            string(r.Model),
		Tier:             string(r.Tier),
		TaskType:         r.TaskType,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		CostUSD:          r.CostUSD,
		DurationMS:       r.Duration.Milliseconds(),
		Status:           string(r.Status),
		ErrorMessage:     r.ErrorMessage,
		SessionID:        r.SessionID,
		RequestID:        r.RequestID,
	}
}

func (m callRecordModel) record() Record {
	return Record{
		Timestamp:        m.Timestamp,
		Model:            model.ModelName(m.Model),
		Tier:             model.Tier(m.Tier),
		TaskType:         m.TaskType,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		TotalTokens:      m.TotalTokens,
		CostUSD:          m.CostUSD,
		Duration:         time.Duration(m.DurationMS) * time.Millisecond,
		Status:           Status(m.Status),
		ErrorMessage:     m.ErrorMessage,
		SessionID:        m.SessionID,
		RequestID:        m.RequestID,
	}
}

// ModelSummary aggregates calls for one model.
type ModelSummary struct {
	Model    string  `json:"model"`
	Calls    int64   `json:"calls"`
	Failures int64   `json:"failures"`
	Tokens   int64   `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
}

// Store persists call records in SQLite through gorm.
type Store struct {
	db            *gorm.DB
	monthlyBudget float64
	now           func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMonthlyBudget sets the budget reported by Snapshot.
func WithMonthlyBudget(usd float64) StoreOption {
	return func(s *Store) {
		if usd > 0 {
			s.monthlyBudget = usd
		}
	}
}

// WithClock replaces the clock used to find the current month.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenStore opens or creates the database at path.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("tracker store: path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tracker store: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("tracker store: open: %w", err)
	}
	if err := db.AutoMigrate(&callRecordModel{}); err != nil {
		return nil, fmt.Errorf("tracker store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)

	s := &Store{
		db:            db,
		monthlyBudget: budget.DefaultMonthlyBudget,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Write implements Writer.
func (s *Store) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]callRecordModel, len(records))
	for i, r := range records {
		rows[i] = toModel(r)
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, DefaultBatchSize).Error
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []callRecordModel
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Session returns every record of one session in call order.
func (s *Store) Session(ctx context.Context, sessionID string) ([]Record, error) {
	var rows []callRecordModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *Store) monthStart() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthSpend returns the summed cost of this month's calls.
func (s *Store) MonthSpend(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&callRecordModel{}).
		Where("timestamp >= ?", s.monthStart()).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error
	return total, err
}

// TierSpend returns this month's cost per tier. Calls without a tier are
// left out.
func (s *Store) TierSpend(ctx context.Context) (map[model.Tier]float64, error) {
	var rows []struct {
		Tier  string
		Total float64
	}
	err := s.db.WithContext(ctx).Model(&callRecordModel{}).
		Where("timestamp >= ? AND tier <> ''", s.monthStart()).
		Select("tier, COALESCE(SUM(cost_usd), 0) AS total").
		Group("tier").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.Tier]float64, len(rows))
	for _, r := range rows {
		out[model.Tier(r.Tier)] = r.Total
	}
	return out, nil
}

// Summary aggregates this month's calls by model, most expensive first.
func (s *Store) Summary(ctx context.Context) ([]ModelSummary, error) {
	var out []ModelSummary
	err := s.db.WithContext(ctx).Model(&callRecordModel{}).
		Where("timestamp >= ?", s.monthStart()).
		Select(`model,
			COUNT(*) AS calls,
			SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END) AS failures,
			COALESCE(SUM(total_tokens), 0) AS tokens,
			COALESCE(SUM(cost_usd), 0) AS cost_usd`, string(StatusSuccess)).
		Group("model").
		Order("cost_usd DESC").
		Scan(&out).Error
	return out, err
}

// Snapshot implements budget.Source from this month's records.
func (s *Store) Snapshot(ctx context.Context) (budget.Snapshot, error) {
	spend, err := s.MonthSpend(ctx)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("month spend: %w", err)
	}
	tiers, err := s.TierSpend(ctx)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("tier spend: %w", err)
	}
	return budget.Snapshot{
		MonthlyBudget: s.monthlyBudget,
		MonthlySpend:  spend,
		TierSpend:     tiers,
		TakenAt:       s.now(),
	}, nil
}

var (
	_ Writer        = (*Store)(nil)
	_ budget.Source = (*Store)(nil)
)
