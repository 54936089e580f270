package pantry

import (
	"time"

	"github.com/zombor/shelf-scanner/internal/scanning"
)

// Record is a persisted recognition result
type Record struct {
	ID              string          `json:"id"`
	Timestamp       int64           `json:"timestamp"` // Unix milliseconds
	ImageRef        string          `json:"image_ref"`
	ContentType     string          `json:"content_type,omitempty"`
	Items           []scanning.Item `json:"items"`
	ItemCount       int             `json:"item_count"`
	RecognitionDate string          `json:"recognition_date"`
}

// CreatedAt returns the record timestamp as a time.Time
func (r *Record) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// matches reports whether any item name contains keyword, ignoring case
func (r *Record) matches(keyword string) bool {
	for _, item := range r.Items {
		if containsFold(item.Name, keyword) {
			return true
		}
	}
	return false
}
