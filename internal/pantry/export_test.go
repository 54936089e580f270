package pantry

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/parquet-go/parquet-go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Export", func() {
	var (
		records []*Record
		buf     bytes.Buffer
	)

	BeforeEach(func() {
		buf.Reset()
		records = []*Record{
			{ID: "id-2", Timestamp: 2000, RecognitionDate: "2024-03-01 12:00:02", Items: items("milk", 7, "cup", nil), ItemCount: 2},
			{ID: "id-1", Timestamp: 1000, RecognitionDate: "2024-03-01 12:00:01", ImageRef: "capture_1.png", Items: items("bread", 3), ItemCount: 1},
		}
	})

	Describe("JSON", func() {
		It("should write the records in the persisted layout", func() {
			Expect(Export(&buf, FormatJSON, records)).To(Succeed())

			var decoded []*Record
			Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
			Expect(decoded).To(Equal(records))
			Expect(buf.String()).To(ContainSubstring(`"shelf_life_days": null`))
		})

		It("should write an empty array for no records", func() {
			Expect(ExportJSON(&buf, nil)).To(Succeed())
			Expect(buf.String()).To(Equal("[]\n"))
		})
	})

	Describe("Parquet", func() {
		It("should write one row per item", func() {
			Expect(Export(&buf, FormatParquet, records)).To(Succeed())

			file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			Expect(err).NotTo(HaveOccurred())
			Expect(file.NumRows()).To(BeNumerically("==", 3))

			reader := parquet.NewGenericReader[ExportRow](file)
			defer reader.Close()
			rows := make([]ExportRow, 3)
			n, err := reader.Read(rows)
			if err != nil {
				Expect(err).To(MatchError(io.EOF))
			}
			Expect(n).To(Equal(3))

			Expect(rows[0].RecordID).To(Equal("id-2"))
			Expect(rows[0].ItemName).To(Equal("milk"))
			Expect(*rows[0].ShelfLifeDays).To(BeNumerically("==", 7))
			Expect(rows[1].ItemName).To(Equal("cup"))
			Expect(rows[1].ShelfLifeDays).To(BeNil())
			Expect(rows[2].ImageRef).To(Equal("capture_1.png"))
			Expect(rows[2].TimestampMillis).To(BeNumerically("==", 1000))
		})
	})

	It("should reject unknown formats", func() {
		Expect(Export(&buf, "csv", records)).To(MatchError(ContainSubstring("unsupported export format")))
	})
})
