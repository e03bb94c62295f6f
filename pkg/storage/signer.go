package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("storage: malformed download token")
	ErrTokenSignature = errors.New("storage: download token signature mismatch")
	ErrTokenExpired   = errors.New("storage: download token expired")
)

// Grant is what a download token authorises.
type Grant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// Signer issues and verifies HMAC-SHA256 download tokens of the form
// base64(job).base64(path).expiry.signature.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer; a non-positive ttl means one day.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for jobID and path valid for the signer TTL.
func (s *Signer) Sign(jobID, path string) (string, Grant, error) {
	if jobID == "" || path == "" {
		return "", Grant{}, ErrTokenMalformed
	}
	if len(s.secret) == 0 {
		return "", Grant{}, errors.New("storage: signing secret not configured")
	}
	g := Grant{JobID: jobID, Path: path, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	body := strings.Join([]string{
		enc(jobID),
		enc(path),
		strconv.FormatInt(g.ExpiresAt.Unix(), 10),
	}, ".")
	return body + "." + s.mac(body), g, nil
}

// Verify checks the token signature and expiry.
func (s *Signer) Verify(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrTokenMalformed
	}
	body := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.mac(body)), []byte(parts[3])) {
		return Grant{}, ErrTokenSignature
	}
	jobID, err1 := dec(parts[0])
	path, err2 := dec(parts[1])
	exp, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Grant{}, ErrTokenMalformed
	}
	g := Grant{JobID: jobID, Path: path, ExpiresAt: time.Unix(exp, 0)}
	if s.now().After(g.ExpiresAt) {
		return g, ErrTokenExpired
	}
	return g, nil
}

func (s *Signer) mac(body string) string {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func enc(v string) string { return base64.RawURLEncoding.EncodeToString([]byte(v)) }

func dec(v string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	return string(b), err
}
