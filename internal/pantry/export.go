package pantry

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Export formats
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// ExportRow is one item of one record, flattened for columnar export
type ExportRow struct {
	RecordID        string `parquet:"record_id"`
	TimestampMillis int64  `parquet:"timestamp_ms"`
	RecognitionDate string `parquet:"recognition_date"`
	ImageRef        string `parquet:"image_ref"`
	ItemName        string `parquet:"item_name"`
	ShelfLifeDays   *int64 `parquet:"shelf_life_days,optional"`
}

// exportRows flattens records into one row per item. Records without items are skipped.
func exportRows(records []*Record) []ExportRow {
	rows := make([]ExportRow, 0, len(records))
	for _, r := range records {
		for _, item := range r.Items {
			row := ExportRow{
				RecordID:        r.ID,
				TimestampMillis: r.Timestamp,
				RecognitionDate: r.RecognitionDate,
				ImageRef:        r.ImageRef,
				ItemName:        item.Name,
			}
			if days, ok := item.ShelfLife.Days(); ok {
				d := int64(days)
				row.ShelfLifeDays = &d
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Export writes records to w in the given format
func Export(w io.Writer, format string, records []*Record) error {
	switch format {
	case FormatJSON, "":
		return ExportJSON(w, records)
	case FormatParquet:
		return ExportParquet(w, records)
	default:
		return fmt.Errorf("unsupported export format %q (supported: json, parquet)", format)
	}
}

// ExportJSON writes records as an indented JSON array, the same layout the store persists
func ExportJSON(w io.Writer, records []*Record) error {
	if records == nil {
		records = []*Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	return nil
}

// ExportParquet writes one row per recognized item
func ExportParquet(w io.Writer, records []*Record) error {
	writer := parquet.NewGenericWriter[ExportRow](w)
	if _, err := writer.Write(exportRows(records)); err != nil {
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}
