package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner mints and verifies the opaque tokens that address
// generated export files. The token embeds everything needed to serve the
// download, so nothing has to be stored server-side per export.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner builds a signer. ttl bounds how long minted tokens
// stay valid; non-positive falls back to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

// Generate signs a token binding scope (the record the export belongs to)
// to the stored file path.
func (s *SignedURLSigner) Generate(scope, relPath string) (string, time.Time, error) {
	if scope == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("scope and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	body := encodeBody(scope, relPath, expiresAt.Unix())
	return body + "." + s.sign(body), expiresAt, nil
}

// Parse verifies the signature and unpacks the token. With allowExpired
// the expiry check is skipped; the cleanup sweeper uses that to resolve
// paths for files whose tokens already lapsed.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (scope, relPath string, expiresAt time.Time, err error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return "", "", time.Time{}, fmt.Errorf("malformed token")
	}
	if !hmac.Equal([]byte(s.sign(body)), []byte(sig)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	scope, relPath, expUnix, err := decodeBody(body)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return scope, relPath, expiresAt, nil
}

func (s *SignedURLSigner) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body)) //nolint:errcheck
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func encodeBody(scope, relPath string, expUnix int64) string {
	plain := scope + "\n" + relPath + "\n" + strconv.FormatInt(expUnix, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(plain))
}

func decodeBody(body string) (scope, relPath string, expUnix int64, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", "", 0, fmt.Errorf("decode token: %w", err)
	}
	parts := strings.SplitN(string(raw), "\n", 3)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed token body")
	}
	expUnix, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid expiry")
	}
	return parts[0], parts[1], expUnix, nil
}
