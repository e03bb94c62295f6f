package qrcodec

import (
	"image"
	_ "image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeScanDecodeRoundTrip(t *testing.T) {
	c := New(300, []int{6, 7, 8})
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	out, err := c.Encode(Identity{ID: "STU1700000000000", Name: "Ava Kumar", Grade: 7})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.DataURL, "data:image/png;base64,"))
	assert.JSONEq(t, `{"id":"STU1700000000000","name":"Ava Kumar","grade":7,"timestamp":"2024-03-01T09:00:00Z"}`, out.Payload)

	img, err := DecodePNG(out.PNG)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())

	text, err := Scan(img)
	require.NoError(t, err)

	id, err := c.Decode(text)
	require.NoError(t, err)
	assert.Equal(t, "STU1700000000000", id.ID)
	assert.Equal(t, "Ava Kumar", id.Name)
	assert.Equal(t, 7, id.Grade)
	assert.True(t, fixed.Equal(id.Timestamp))
}

func TestEncodeRejectsIncompleteIdentity(t *testing.T) {
	c := New(0, []int{6, 7, 8})
	cases := []Identity{
		{Name: "x", Grade: 6},
		{ID: "S1", Grade: 6},
		{ID: "S1", Name: "x", Grade: 9},
	}
	for _, id := range cases {
		_, err := c.Encode(id)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	}
}

func TestDecodeMalformed(t *testing.T) {
	c := New(0, nil)
	inputs := []string{
		"https://example.com",
		"",
		`{"name":"x","grade":7,"timestamp":"2024-03-01T09:00:00Z"}`,
		`{"id":"S1","grade":"7","timestamp":"2024-03-01T09:00:00Z"}`,
		`{"id":"S1","grade":7}`,
		`{"id":"S1","grade":7,"timestamp":"yesterday"}`,
		`{"id":"S1","grade":7,"timestamp":"2024-03-01T09:00:00Z"} trailing`,
	}
	for _, in := range inputs {
		_, err := c.Decode(in)
		assert.ErrorIs(t, err, ErrMalformedPayload, in)
	}
}

func TestScanBlankFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	_, err := Scan(img)
	assert.ErrorIs(t, err, ErrNoCode)
}
