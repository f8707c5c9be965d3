package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	MaxUploadSizeBytes int64 = 5 * 1024 * 1024
	// MaxImageWidth bounds scanned receipts; wider images are downscaled.
	MaxImageWidth = 1600
)

var documentMimeTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// Document is a payment file ready to be stored.
type Document struct {
	ObjectKey   string
	ContentType string
	Data        []byte
}

// PrepareDocument sniffs the content type, rejects anything other than PDF or
// image files, downscales images and builds the object key
// invoices/<id>/<kind>/<uuid><ext>.
func PrepareDocument(invoiceID int, kind models.DocumentKind, data []byte) (*Document, error) {
	if !kind.IsValid() || kind == models.DocumentKindAccessCode {
		return nil, fmt.Errorf("document kind %q cannot be uploaded: %w", kind, utils.ErrorInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %w", utils.ErrorInvalidInput)
	}
	if int64(len(data)) > MaxUploadSizeBytes {
		return nil, fmt.Errorf("file size exceeds 5MB limit: %w", utils.ErrorInvalidInput)
	}

	contentType := http.DetectContentType(data)
	ext, ok := documentMimeTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %s: %w", contentType, utils.ErrorInvalidInput)
	}
	if strings.HasPrefix(contentType, "image/") {
		compressed, err := Compress(data)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, utils.ErrorInvalidInput)
		}
		data, contentType, ext = compressed, "image/jpeg", ".jpg"
	}

	return &Document{
		ObjectKey:   ObjectKey(invoiceID, kind, ext),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func ObjectKey(invoiceID int, kind models.DocumentKind, ext string) string {
	return KeyPrefix(invoiceID, kind) + uuid.New().String() + ext
}

// KeyPrefix is the folder holding one document kind of an invoice.
func KeyPrefix(invoiceID int, kind models.DocumentKind) string {
	return invoicePrefix(invoiceID) + string(kind) + "/"
}

// IsDocumentKey reports whether key names an object inside the folder of
// this invoice and kind.
func IsDocumentKey(invoiceID int, kind models.DocumentKind, key string) bool {
	prefix := KeyPrefix(invoiceID, kind)
	return len(key) > len(prefix) && strings.HasPrefix(key, prefix) && path.Clean(key) == key
}

// OwnsKey reports whether key was stored for invoiceID, whatever its kind.
func OwnsKey(invoiceID int, key string) bool {
	return strings.HasPrefix(key, invoicePrefix(invoiceID)) && path.Clean(key) == key
}

func invoicePrefix(invoiceID int) string {
	return "invoices/" + strconv.Itoa(invoiceID) + "/"
}

// Compress re-encodes an image as JPEG, downscaling it to MaxImageWidth.
func Compress(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}
	var out image.Image = img
	if img.Bounds().Dx() > MaxImageWidth {
		out = imaging.Resize(img, MaxImageWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
