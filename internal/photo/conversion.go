package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedFormat is returned for attachments that are neither an image
// nor a PDF.
var ErrUnsupportedFormat = errors.New("unsupported photo format")

// Image is an attachment ready to be stored and archived
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

// jpegQuality is used when re-encoding HEIC photos
const jpegQuality = 90

// Normalize converts an uploaded attachment into a format every viewer can
// open. JPEG and PNG pass through untouched, GIF becomes PNG, HEIC/HEIF from
// phones becomes JPEG and a PDF becomes a PNG of its first page.
func Normalize(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedFormat)
	}

	mimeType := detectMimeType(data, contentType)
	switch {
	case mimeType == "image/jpeg":
		return &Image{Data: data, ContentType: "image/jpeg", Ext: "jpg"}, nil
	case mimeType == "image/png":
		return &Image{Data: data, ContentType: "image/png", Ext: "png"}, nil
	case isHEICMimeType(mimeType):
		return heicToJPEG(data)
	case mimeType == "application/pdf":
		return pdfToPNG(data)
	case strings.HasPrefix(mimeType, "image/"):
		return imageToPNG(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

// detectMimeType prefers what the bytes say; the declared type is only used
// when sniffing finds nothing specific.
func detectMimeType(data []byte, contentType string) string {
	if isHEICFormat(data) {
		return "image/heic"
	}

	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" {
		return sniffed
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return sniffed
	}
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}

// heicToJPEG decodes HEIC/HEIF, which the standard image package cannot read
func heicToJPEG(data []byte) (*Image, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return &Image{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: "jpg"}, nil
}

// pdfToPNG renders the first page of a PDF
func pdfToPNG(data []byte) (*Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

// imageToPNG converts any other decodable image to PNG
func imageToPNG(data []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) (*Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return &Image{Data: buf.Bytes(), ContentType: "image/png", Ext: "png"}, nil
}

// isHEICFormat checks the ftyp box brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
