package postback

import (
	"encoding/json"
	"fmt"
	"time"
)

type postbackRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	URL           string    `gorm:"type:text;not null"`
	Method        string    `gorm:"size:16;not null"`
	PayloadJSON   string    `gorm:"type:text"`
	HeadersJSON   string    `gorm:"type:text"`
	Status        string    `gorm:"size:32;not null;index"`
	Retries       int       `gorm:"not null"`
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
	NextAttemptAt time.Time `gorm:"not null;index"`
}

func (postbackRow) TableName() string {
	return "postbacks"
}

func (r postbackRow) toItem() (Item, error) {
	item := Item{
		ID:            r.ID,
		URL:           r.URL,
		Method:        r.Method,
		Status:        Status(r.Status),
		Retries:       r.Retries,
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		NextAttemptAt: r.NextAttemptAt,
	}
	if r.PayloadJSON != "" {
		item.Payload = json.RawMessage(r.PayloadJSON)
	}
	if r.HeadersJSON != "" {
		if err := json.Unmarshal([]byte(r.HeadersJSON), &item.Headers); err != nil {
			return Item{}, fmt.Errorf("decode headers for %s: %w", r.ID, err)
		}
	}
	return item, nil
}

func rowFromItem(item Item) (postbackRow, error) {
	row := postbackRow{
		ID:            item.ID,
		URL:           item.URL,
		Method:        item.Method,
		PayloadJSON:   string(item.Payload),
		Status:        string(item.Status),
		Retries:       item.Retries,
		LastError:     item.LastError,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		NextAttemptAt: item.NextAttemptAt,
	}
	if len(item.Headers) > 0 {
		encoded, err := json.Marshal(item.Headers)
		if err != nil {
			return postbackRow{}, fmt.Errorf("encode headers for %s: %w", item.ID, err)
		}
		row.HeadersJSON = string(encoded)
	}
	return row, nil
}
