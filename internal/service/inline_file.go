package service

import (
	"encoding/base64"
	"net/http"
	"strings"

	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

const (
	maxReceiptBytes  = 5 << 20
	maxMaterialBytes = 10 << 20
)

var receiptTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"application/pdf": {},
}

var materialTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain": {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
}

// inlineFile is a decoded "data:<mime>;base64,<body>" URL.
type inlineFile struct {
	MIME string
	Data []byte
}

func parseDataURL(raw string) (inlineFile, error) {
	invalid := appErrors.Clone(appErrors.ErrValidation, "file must be a base64 data URL")
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return inlineFile{}, invalid
	}
	meta, body, ok := strings.Cut(rest, ",")
	if !ok {
		return inlineFile{}, invalid
	}
	mime, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return inlineFile{}, invalid
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return inlineFile{}, invalid
	}
	return inlineFile{MIME: strings.ToLower(mime), Data: data}, nil
}

// checkReceipt enforces the receipt size and type limits. The declared type
// must agree with the sniffed content.
func checkReceipt(raw string) error {
	f, err := parseDataURL(raw)
	if err != nil {
		return err
	}
	if len(f.Data) > maxReceiptBytes {
		return appErrors.Clone(appErrors.ErrValidation, "File size must be less than 5MB")
	}
	if _, ok := receiptTypes[f.MIME]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "Only JPG, PNG, or PDF files are allowed")
	}
	sniffed := http.DetectContentType(f.Data)
	if _, ok := receiptTypes[strings.SplitN(sniffed, ";", 2)[0]]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "Only JPG, PNG, or PDF files are allowed")
	}
	return nil
}

func checkMaterial(raw, declared string) (string, error) {
	f, err := parseDataURL(raw)
	if err != nil {
		return "", err
	}
	if len(f.Data) > maxMaterialBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "File size must be less than 10MB")
	}
	mime := f.MIME
	if declared != "" {
		mime = strings.ToLower(declared)
	}
	if _, ok := materialTypes[mime]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "Only PDF, DOC, DOCX, TXT, JPG, or PNG files are allowed")
	}
	return mime, nil
}
