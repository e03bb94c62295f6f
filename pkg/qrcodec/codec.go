// Package qrcodec turns student identities into QR images and back.
package qrcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrgen "github.com/skip2/go-qrcode"
)

var (
	// ErrMalformedPayload means the text is not a student identity.
	ErrMalformedPayload = errors.New("qrcodec: invalid QR code format")
	// ErrNoCode means no QR code could be read from the image.
	ErrNoCode = errors.New("qrcodec: no QR code in frame")
	// ErrInvalidIdentity is returned by Encode for incomplete identities.
	ErrInvalidIdentity = errors.New("qrcodec: identity requires id, name and a valid grade")
)

// DefaultSize is the rendered image width and height in pixels.
const DefaultSize = 300

// Identity is the snapshot embedded in a student's QR code.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grade     int       `json:"grade"`
	Timestamp time.Time `json:"timestamp"`
}

// Image is an encoded QR code.
type Image struct {
	Payload string
	PNG     []byte
	DataURL string
}

// Codec encodes with a fixed image size and validates grades against a set.
type Codec struct {
	size   int
	grades map[int]struct{}
	now    func() time.Time
}

// New returns a Codec. An empty grades list accepts any positive grade.
func New(size int, grades []int) *Codec {
	if size <= 0 {
		size = DefaultSize
	}
	set := make(map[int]struct{}, len(grades))
	for _, g := range grades {
		set[g] = struct{}{}
	}
	return &Codec{size: size, grades: set, now: time.Now}
}

func (c *Codec) gradeOK(grade int) bool {
	if len(c.grades) == 0 {
		return grade > 0
	}
	_, ok := c.grades[grade]
	return ok
}

// Encode stamps id with the current time and renders it at the codec size.
func (c *Codec) Encode(id Identity) (Image, error) {
	if strings.TrimSpace(id.ID) == "" || strings.TrimSpace(id.Name) == "" || !c.gradeOK(id.Grade) {
		return Image{}, ErrInvalidIdentity
	}
	id.Timestamp = c.now().UTC().Truncate(time.Millisecond)

	payload, err := json.Marshal(id)
	if err != nil {
		return Image{}, fmt.Errorf("marshal identity: %w", err)
	}
	png, err := qrgen.Encode(string(payload), qrgen.Medium, c.size)
	if err != nil {
		return Image{}, fmt.Errorf("render qr: %w", err)
	}
	return Image{
		Payload: string(payload),
		PNG:     png,
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

type wireIdentity struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Grade     json.RawMessage `json:"grade"`
	Timestamp string          `json:"timestamp"`
}

// Decode parses scanned text. Anything that is not a JSON identity with an
// id, an integer grade and an RFC 3339 timestamp is ErrMalformedPayload.
func (c *Codec) Decode(text string) (Identity, error) {
	var w wireIdentity
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	if err := dec.Decode(&w); err != nil || dec.More() {
		return Identity{}, ErrMalformedPayload
	}
	if strings.TrimSpace(w.ID) == "" || len(w.Grade) == 0 {
		return Identity{}, ErrMalformedPayload
	}
	var grade int
	if err := json.Unmarshal(w.Grade, &grade); err != nil {
		return Identity{}, ErrMalformedPayload
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return Identity{}, ErrMalformedPayload
	}
	return Identity{ID: w.ID, Name: w.Name, Grade: grade, Timestamp: ts}, nil
}

// Scan reads the first QR code found in img and returns its text.
func Scan(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		// Partial or blurred codes fail checksum or format checks; callers
		// treat them the same as an empty frame.
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}

// DecodePNG is a convenience for images already held as PNG bytes.
func DecodePNG(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
