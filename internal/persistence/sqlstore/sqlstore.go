// Package sqlstore implements the persistence Adapter on top of GORM
// and Postgres (spec.md §4.13), grounded on the pack's own
// GORM-model-plus-AutoMigrate idiom for recording trading state.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/guyghost/backtestkit/internal/persistence"
)

// entityRecord is the GORM model backing one persisted entity blob.
type entityRecord struct {
	EntityID string `gorm:"primaryKey;column:entity_id"`
	Value    []byte `gorm:"column:value;type:bytea;not null"`
}

func (entityRecord) TableName() string { return "engine_entities" }

// Adapter stores each entity as one row in a single "engine_entities"
// table, keyed by entity id.
type Adapter struct {
	db *gorm.DB
}

// New opens a Postgres connection via dsn (e.g.
// "host=localhost user=postgres dbname=backtestkit sslmode=disable").
func New(dsn string) (*Adapter, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	return &Adapter{db: db}, nil
}

var _ persistence.Adapter = (*Adapter)(nil)

func (a *Adapter) WaitForInit(ctx context.Context, initial bool) error {
	if err := a.db.WithContext(ctx).AutoMigrate(&entityRecord{}); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func (a *Adapter) ReadValue(ctx context.Context, entityID string) ([]byte, error) {
	var rec entityRecord
	err := a.db.WithContext(ctx).First(&rec, "entity_id = ?", entityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (a *Adapter) HasValue(ctx context.Context, entityID string) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&entityRecord{}).Where("entity_id = ?", entityID).Count(&count).Error
	return count > 0, err
}

func (a *Adapter) WriteValue(ctx context.Context, entityID string, value []byte) error {
	rec := entityRecord{EntityID: entityID, Value: value}
	return a.db.WithContext(ctx).Save(&rec).Error
}

func (a *Adapter) RemoveValue(ctx context.Context, entityID string) error {
	return a.db.WithContext(ctx).Delete(&entityRecord{}, "entity_id = ?", entityID).Error
}

func (a *Adapter) Values(ctx context.Context) ([][]byte, error) {
	var recs []entityRecord
	if err := a.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([][]byte, len(recs))
	for i, r := range recs {
		out[i] = r.Value
	}
	return out, nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	var recs []entityRecord
	if err := a.db.WithContext(ctx).Select("entity_id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.EntityID
	}
	return out, nil
}
