// Package signing implements the HMAC helper behind FolderDrop's locally
// served signed URLs: the in-memory object store and the fallback archive
// links both use it.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrMissingParams = errors.New("missing signature parameters")
	ErrExpired       = errors.New("url expired")
	ErrBadSignature  = errors.New("invalid signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature binding method, key and expiry together.
func (s *Signer) Sign(method, key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%d", method, key, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one. It does not
// look at the clock; see Check.
func (s *Signer) Validate(method, key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(method, key, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Check validates the expires/signature query parameters of a request for key.
func (s *Signer) Check(method, key string, query url.Values) error {
	expires := query.Get("expires")
	signature := query.Get("signature")
	if expires == "" || signature == "" {
		return ErrMissingParams
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return ErrExpired
	}
	if !s.Validate(method, key, expires, signature) {
		return ErrBadSignature
	}
	return nil
}

// URL builds base?expires=..&signature=.. plus any extra params. Extra params
// are not covered by the signature.
func (s *Signer) URL(base, method, key string, ttl time.Duration, extra url.Values) string {
	expiry := s.now().Add(ttl).Unix()
	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("signature", s.Sign(method, key, expiry))
	return base + "?" + q.Encode()
}
