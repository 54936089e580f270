package scanning

import (
	"encoding/base64"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Encoder", func() {
	var (
		encoder *Encoder
		data    []byte
		encoded string
		err     error
	)

	BeforeEach(func() {
		encoder = NewEncoder()
	})

	JustBeforeEach(func() {
		encoded, err = encoder.Encode(data)
	})

	When("the data is a valid image", func() {
		BeforeEach(func() {
			data = []byte("\xff\xd8\xff\xe0 fake jpeg \x00\x01\x02")
		})

		It("should round-trip through base64", func() {
			Expect(err).NotTo(HaveOccurred())
			decoded, decodeErr := base64.StdEncoding.DecodeString(encoded)
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(data))
		})
	})

	When("the data is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("should return an EncodingError", func() {
			var encodingErr *EncodingError
			Expect(errors.As(err, &encodingErr)).To(BeTrue())
		})
	})

	When("the data exceeds the size bound", func() {
		BeforeEach(func() {
			encoder = &Encoder{MaxBytes: 8}
			data = []byte("123456789")
		})

		It("should return an EncodingError", func() {
			var encodingErr *EncodingError
			Expect(errors.As(err, &encodingErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("maximum is 8"))
		})
	})
})

var _ = Describe("BuildRequest", func() {
	It("should fall back to the default instruction", func() {
		req := BuildRequest("abc", "image/png", "  \x00\x07 ")
		Expect(req.InstructionText).To(Equal(DefaultInstruction()))
	})

	It("should default the MIME type to JPEG", func() {
		req := BuildRequest("abc", "", "name the items")
		Expect(req.DataURL()).To(Equal("data:image/jpeg;base64,abc"))
	})

	It("should strip control characters but keep newlines", func() {
		req := BuildRequest("abc", "image/png", "line one\x1b[31m\nline two\x00")
		Expect(req.InstructionText).To(Equal("line one[31m\nline two"))
	})

	It("should truncate long instructions", func() {
		req := BuildRequest("abc", "image/png", strings.Repeat("é", 6000))
		Expect([]rune(req.InstructionText)).To(HaveLen(5000))
	})

	It("should delimit the image in the prompt", func() {
		req := BuildRequest("abc", "image/png", "what is this")
		Expect(req.Prompt()).To(Equal("what is this\n<image>data:image/png;base64,abc</image>"))
		Expect(req.HasImage()).To(BeTrue())
	})

	It("should build text-only requests without an image", func() {
		req := TextRequest("how long does bread last?")
		Expect(req.HasImage()).To(BeFalse())
		Expect(req.DataURL()).To(BeEmpty())
		Expect(req.Prompt()).To(Equal("how long does bread last?"))
	})

	It("should not treat a literal image tag in the instruction as an image", func() {
		req := TextRequest("what does <image> mean in html?")
		Expect(req.HasImage()).To(BeFalse())
		Expect(req.DataURL()).To(BeEmpty())
	})
})
