package recognition

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	return img
}

var _ = Describe("ToPNG", func() {
	When("given a PNG", func() {
		It("should return the data unchanged", func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage(4, 4))).To(Succeed())
			out, err := ToPNG(buf.Bytes(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(buf.Bytes()))
		})
	})

	When("given a JPEG", func() {
		It("should convert it to PNG", func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(8, 6), nil)).To(Succeed())
			out, err := ToPNG(buf.Bytes(), " IMAGE/JPEG ")
			Expect(err).NotTo(HaveOccurred())

			decoded, format, err := image.Decode(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(decoded.Bounds().Dx()).To(Equal(8))
			Expect(decoded.Bounds().Dy()).To(Equal(6))
		})
	})

	When("given bytes that are not an image", func() {
		It("should return an error", func() {
			_, err := ToPNG([]byte("not an image"), "image/jpeg")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Enhance", func() {
	It("should keep the image dimensions", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage(12, 9))).To(Succeed())

		out, err := Enhance(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())

		decoded, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.Bounds().Dx()).To(Equal(12))
		Expect(decoded.Bounds().Dy()).To(Equal(9))
	})

	It("should produce a grayscale image", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage(3, 3))).To(Succeed())

		out, err := Enhance(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())

		decoded, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		r, g, b, _ := decoded.At(1, 1).RGBA()
		Expect(r).To(Equal(g))
		Expect(g).To(Equal(b))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect an ftyp heic header", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should reject short or unrelated data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
		Expect(isHEICFormat([]byte("\x89PNG\r\n\x1a\n00000000"))).To(BeFalse())
	})
})

var _ = Describe("parseAzureBox", func() {
	It("should parse x,y,width,height", func() {
		Expect(parseAzureBox("10,20,300,40")).To(Equal(&Box{X: 10, Y: 20, Width: 300, Height: 40}))
	})

	It("should return nil for malformed boxes", func() {
		Expect(parseAzureBox("10,20")).To(BeNil())
		Expect(parseAzureBox("a,b,c,d")).To(BeNil())
	})
})
