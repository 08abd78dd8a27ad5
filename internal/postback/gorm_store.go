package postback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "pushrelay/internal/db"
)

// GormStore persists queue items in a relational database, so queued work
// survives a restart of the relay process.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postback store: %w", err)
	}

	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&postbackRow{}); err != nil {
		return nil, fmt.Errorf("migrate postback store: %w", err)
	}
	return store, nil
}

func (s *GormStore) Create(ctx context.Context, item Item) error {
	row, err := rowFromItem(item)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create postback: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Item, error) {
	var row postbackRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("get postback: %w", err)
	}
	return row.toItem()
}

func (s *GormStore) List(ctx context.Context) ([]Item, error) {
	var rows []postbackRow
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list postbacks: %w", err)
	}

	out := make([]Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toItem()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, item Item) error {
	row, err := rowFromItem(item)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Save(&row)
	if res.Error != nil {
		return fmt.Errorf("update postback: %w", res.Error)
	}
	return nil
}

func (s *GormStore) TakePending(ctx context.Context, limit int, now time.Time) ([]Item, error) {
	var claimed []Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []postbackRow
		if err := tx.
			Where("status = ? AND next_attempt_at <= ?", string(StatusPending), now).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("select pending: %w", err)
		}

		for _, row := range rows {
			res := tx.Model(&postbackRow{}).
				Where("id = ? AND status = ?", row.ID, string(StatusPending)).
				Updates(map[string]any{"status": string(StatusProcessing), "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("claim %s: %w", row.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			row.Status = string(StatusProcessing)
			row.UpdatedAt = now
			item, err := row.toItem()
			if err != nil {
				return err
			}
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *GormStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{string(StatusCompleted), string(StatusFailed)}, cutoff).
		Delete(&postbackRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup postbacks: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
