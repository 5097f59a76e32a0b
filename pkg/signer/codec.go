// Package signer issues and checks the two HMAC credentials used by the
// lightweight client: time-windowed user tokens and permanent exercise
// signatures. Verification is a pure function of the secret, the token and
// the current hour.
package signer

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// UserSignatureLen is the number of hex characters kept from a user token MAC.
	UserSignatureLen = 32
	// ResourceSignatureLen is the number of hex characters in an exercise signature.
	ResourceSignatureLen = 16
	// DefaultWindowHours is how many hour buckets a user token stays valid.
	DefaultWindowHours = 12
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// Epoch is the origin of hour buckets.
var Epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.Local)

// Clock returns the current time.
type Clock func() time.Time

// Codec signs and verifies tokens with a process-wide secret.
type Codec struct {
	secret []byte
	window int64
	now    Clock
}

// NewCodec constructs a codec. A non-positive window falls back to DefaultWindowHours.
func NewCodec(secret string, windowHours int, clock Clock) *Codec {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	if clock == nil {
		clock = time.Now
	}
	return &Codec{secret: []byte(secret), window: int64(windowHours), now: clock}
}

// HourBucket converts t to whole hours elapsed since Epoch.
func HourBucket(t time.Time) int64 {
	return int64(t.Sub(Epoch) / time.Hour)
}

// CurrentBucket returns the hour bucket for the codec clock.
func (c *Codec) CurrentBucket() int64 {
	return HourBucket(c.now())
}

// SignUser returns identity:bucket:signature.
func (c *Codec) SignUser(identity string, bucket int64) string {
	ts := strconv.FormatInt(bucket, 10)
	return identity + ":" + ts + ":" + c.userSignature(identity, ts)
}

// IssueUser signs identity for the current hour bucket.
func (c *Codec) IssueUser(identity string) string {
	return c.SignUser(identity, c.CurrentBucket())
}

// VerifyUser returns the identity carried by token. Any malformed input is
// reported as an error, never a panic.
func (c *Codec) VerifyUser(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	identity, ts, signature := parts[0], parts[1], parts[2]
	if identity == "" || len(signature) != UserSignatureLen {
		return "", ErrMalformedToken
	}
	bucket, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || strconv.FormatInt(bucket, 10) != ts {
		return "", ErrMalformedToken
	}

	expected := c.userSignature(identity, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", ErrBadSignature
	}
	if c.CurrentBucket()-bucket > c.window {
		return "", ErrTokenExpired
	}
	return identity, nil
}

// SignResource returns the permanent signature for an exercise tuple.
func (c *Codec) SignResource(course, section, exercise string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write(resourcePayload(course, section, exercise))
	return hex.EncodeToString(mac.Sum(nil))[:ResourceSignatureLen]
}

// VerifyResource reports whether signature matches the exercise tuple.
func (c *Codec) VerifyResource(signature, course, section, exercise string) bool {
	if len(signature) != ResourceSignatureLen {
		return false
	}
	expected := c.SignResource(course, section, exercise)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Codec) userSignature(identity, ts string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(identity))
	_, _ = mac.Write([]byte(ts))
	return hex.EncodeToString(mac.Sum(nil))[:UserSignatureLen]
}

// resourcePayload serialises the tuple as {"0":course,"1":section,"2":exercise}
// so signatures stay compatible with bundles handed out by earlier servers.
func resourcePayload(course, section, exercise string) []byte {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]string{"0": course, "1": section, "2": exercise})
	return bytes.TrimRight(buf.Bytes(), "\n")
}
