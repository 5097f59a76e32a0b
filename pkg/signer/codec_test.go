package signer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestCodec() (*Codec, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.March, 4, 10, 30, 0, 0, time.Local)}
	return NewCodec("secret", 12, clock.Now), clock
}

func TestUserTokenRoundTrip(t *testing.T) {
	codec, _ := newTestCodec()
	token := codec.IssueUser("alice")

	parts := strings.Split(token, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, "alice", parts[0])
	assert.Len(t, parts[2], UserSignatureLen)
	assert.Equal(t, strings.ToLower(parts[2]), parts[2])

	identity, err := codec.VerifyUser(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
}

func TestUserTokenWindow(t *testing.T) {
	codec, clock := newTestCodec()
	bucket := codec.CurrentBucket()
	token := codec.SignUser("bob", bucket)

	clock.t = clock.t.Add(12 * time.Hour)
	_, err := codec.VerifyUser(token)
	require.NoError(t, err, "still valid at exactly twelve buckets")

	clock.t = clock.t.Add(time.Hour)
	_, err = codec.VerifyUser(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestUserTokenRejectsTampering(t *testing.T) {
	codec, _ := newTestCodec()
	token := codec.IssueUser("alice")
	parts := strings.Split(token, ":")

	cases := map[string]string{
		"other identity":   "mallory:" + parts[1] + ":" + parts[2],
		"shifted bucket":   parts[0] + ":" + "1" + parts[1] + ":" + parts[2],
		"padded bucket":    parts[0] + ":0" + parts[1] + ":" + parts[2],
		"short signature":  parts[0] + ":" + parts[1] + ":" + parts[2][:10],
		"missing parts":    "alice:123",
		"extra parts":      token + ":x",
		"empty":            "",
		"non numeric":      "alice:abc:" + parts[2],
		"empty identity":   ":" + parts[1] + ":" + parts[2],
		"uppercase digest": parts[0] + ":" + parts[1] + ":" + strings.ToUpper(parts[2]),
	}
	for name, candidate := range cases {
		t.Run(name, func(t *testing.T) {
			identity, err := codec.VerifyUser(candidate)
			assert.Error(t, err)
			assert.Empty(t, identity)
		})
	}
}

func TestUserTokenDifferentSecret(t *testing.T) {
	codec, clock := newTestCodec()
	other := NewCodec("another", 12, clock.Now)
	_, err := other.VerifyUser(codec.IssueUser("alice"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestResourceSignature(t *testing.T) {
	codec, _ := newTestCodec()
	sig := codec.SignResource("cs.101", "a", "lab-1")
	assert.Len(t, sig, ResourceSignatureLen)
	assert.Equal(t, sig, codec.SignResource("cs.101", "a", "lab-1"))
	assert.True(t, codec.VerifyResource(sig, "cs.101", "a", "lab-1"))
	assert.False(t, codec.VerifyResource(sig[:15], "cs.101", "a", "lab-1"))
}

func TestResourceSignatureSingleCharacterMutations(t *testing.T) {
	codec, _ := newTestCodec()
	tuple := [3]string{"cs.101", "a", "lab-1"}
	sig := codec.SignResource(tuple[0], tuple[1], tuple[2])

	for field := range tuple {
		for i := range tuple[field] {
			mutated := tuple
			b := []byte(mutated[field])
			b[i] ^= 0x01
			mutated[field] = string(b)
			assert.False(t, codec.VerifyResource(sig, mutated[0], mutated[1], mutated[2]), "field %d index %d", field, i)
		}
	}
}

func TestResourcePayloadShape(t *testing.T) {
	assert.Equal(t, `{"0":"cs.101","1":"a","2":"lab<1>"}`, string(resourcePayload("cs.101", "a", "lab<1>")))
}

func TestHourBucket(t *testing.T) {
	assert.Equal(t, int64(0), HourBucket(Epoch.Add(59*time.Minute)))
	assert.Equal(t, int64(25), HourBucket(Epoch.Add(25*time.Hour+time.Second)))
}
