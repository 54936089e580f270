package pantry

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/shelf-scanner/internal/scanning"
)

var _ = Describe("DescribeError", func() {
	It("should return nil for nil", func() {
		Expect(DescribeError(nil)).To(BeNil())
	})

	DescribeTable("error kinds",
		func(err error, kind string) {
			d := DescribeError(err)
			Expect(d.Kind).To(Equal(kind))
			Expect(d.Message).NotTo(BeEmpty())
			Expect(d.Detail).To(Equal(err.Error()))
		},
		Entry("encoding", &scanning.EncodingError{Reason: "empty"}, KindEncoding),
		Entry("timeout", &scanning.TransportError{Kind: scanning.KindTimeout}, KindTimeout),
		Entry("network", &scanning.TransportError{Kind: scanning.KindNetwork}, KindNetwork),
		Entry("tls", &scanning.TransportError{Kind: scanning.KindTLS}, KindTLS),
		Entry("401", &scanning.TransportError{Kind: scanning.KindHTTPStatus, StatusCode: 401}, KindAuth),
		Entry("403", &scanning.TransportError{Kind: scanning.KindHTTPStatus, StatusCode: 403}, KindForbidden),
		Entry("404", &scanning.TransportError{Kind: scanning.KindHTTPStatus, StatusCode: 404}, KindNotFound),
		Entry("blocked", &scanning.TransportError{Kind: scanning.KindBlocked}, KindBlocked),
		Entry("500", &scanning.TransportError{Kind: scanning.KindHTTPStatus, StatusCode: 500}, KindHTTP),
		Entry("wrapped transport", fmt.Errorf("calling: %w", &scanning.TransportError{Kind: scanning.KindTimeout}), KindTimeout),
		Entry("persistence", &PersistenceError{Op: "append", Err: errors.New("disk full")}, KindPersistence),
		Entry("missing record", fmt.Errorf("%w: id-1", ErrNotFound), KindRecordNotFound),
		Entry("anything else", errors.New("boom"), KindUnknown),
	)
})

var _ = Describe("DemoItems", func() {
	It("should return the demo list with known shelf-lives", func() {
		demo := DemoItems()
		Expect(demo).To(HaveLen(5))
		Expect(demo[0]).To(Equal(scanning.Item{Name: "bread", ShelfLife: scanning.Days(3)}))
		Expect(Validator{}.Eligible(demo)).To(BeTrue())
	})
})
