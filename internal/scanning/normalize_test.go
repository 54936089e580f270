package scanning

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func encodeTestPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Normalize", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		mimeType    string
		err         error
	)

	JustBeforeEach(func() {
		out, mimeType, err = Normalize(data, contentType)
	})

	When("the image is a PNG", func() {
		BeforeEach(func() {
			data = encodeTestPNG()
			contentType = "image/png"
		})

		It("should pass it through unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			data = encodeTestPNG()
			contentType = "application/octet-stream"
		})

		It("should sniff the type from the data", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the content type has parameters", func() {
		BeforeEach(func() {
			data = encodeTestPNG()
			contentType = "Image/PNG; charset=binary"
		})

		It("should ignore them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the image is a GIF", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(gif.Encode(&buf, testImage(), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = "image/gif"
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			Expect(out).To(HavePrefix("\x89PNG"))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "image/bmp"
		})

		It("should return an EncodingError", func() {
			var encodingErr *EncodingError
			Expect(errors.As(err, &encodingErr)).To(BeTrue())
		})
	})

	When("the data is empty", func() {
		BeforeEach(func() {
			data = nil
			contentType = "image/jpeg"
		})

		It("should return an EncodingError", func() {
			var encodingErr *EncodingError
			Expect(errors.As(err, &encodingErr)).To(BeTrue())
		})
	})
})
