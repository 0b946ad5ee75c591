package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardiorisk/internal/store"
	storemodel "cardiorisk/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

type predictionModel = storemodel.PredictionModel

const defaultListLimit = 50

// GormStore is the SQLite audit log.
type GormStore struct {
	db *gorm.DB
}

var _ store.PredictionLog = (*GormStore)(nil)

// NewGormStore opens (and migrates) the audit database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: audit path required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&predictionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little read parallelism for concurrent HTTP handlers.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Save(ctx context.Context, rec *store.PredictionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec == nil {
		return nil
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m, err := newPredictionModel(*rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListRecent(ctx context.Context, limit int) ([]store.PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var models []predictionModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("rowid DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.PredictionRecord, 0, len(models))
	for _, m := range models {
		rec, err := predictionModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func newPredictionModel(rec store.PredictionRecord) (predictionModel, error) {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return predictionModel{}, fmt.Errorf("encode inputs: %w", err)
	}
	m := predictionModel{
		ID:            rec.ID,
		Variant:       rec.Variant,
		Probability:   rec.Probability,
		Margin:        rec.Margin,
		InputsJSON:    datatypes.JSON(inputs),
		Warning:       rec.Warning,
		CreatedAtUnix: rec.CreatedAt.UnixMilli(),
	}
	if len(rec.Explanation) > 0 {
		m.ExplanationJSON = datatypes.JSON(rec.Explanation)
	}
	return m, nil
}

func predictionModelToRecord(m predictionModel) (store.PredictionRecord, error) {
	rec := store.PredictionRecord{
		ID:          m.ID,
		Variant:     m.Variant,
		Probability: m.Probability,
		Margin:      m.Margin,
		Warning:     m.Warning,
		CreatedAt:   time.UnixMilli(m.CreatedAtUnix),
	}
	if len(m.InputsJSON) > 0 {
		if err := json.Unmarshal(m.InputsJSON, &rec.Inputs); err != nil {
			return store.PredictionRecord{}, fmt.Errorf("decode inputs of %s: %w", m.ID, err)
		}
	}
	if len(m.ExplanationJSON) > 0 {
		rec.Explanation = json.RawMessage(m.ExplanationJSON)
	}
	return rec, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
