// Package snapshot implements the signed state token that forgewire
// round-trips through the browser.
//
// A Snapshot carries a component name, its JSON-encoded state fields and an
// HMAC-SHA256 checksum over both. The token form is either
//   - Signed (default): base64url(msgpack(snapshot)), visible but tamper-proof
//   - Encrypted: base64url(nonce|AES-256-GCM(msgpack(snapshot))), fully opaque
//
// In both modes the checksum is recomputed and compared on every restore; the
// encryption layer adds confidentiality, not integrity.
package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors.
var (
	ErrInvalidFormat = errors.New("snapshot: invalid token format")
	ErrDecryptFailed = errors.New("snapshot: token decryption failed")
	ErrTampered      = errors.New("snapshot: checksum mismatch")
)

// Snapshot is the state token exchanged with the browser.
type Snapshot struct {
	Component string                     `msgpack:"c" json:"component"`
	State     map[string]json.RawMessage `msgpack:"s" json:"state"`
	Checksum  string                     `msgpack:"h" json:"checksum"`
}

type keyPair struct {
	mac []byte
	gcm cipher.AEAD
}

// Codec signs, verifies, encodes and decodes snapshots.
// The first key signs; all keys verify, so secrets can be rotated without
// invalidating snapshots already held by open pages.
type Codec struct {
	keys []keyPair
}

// NewCodec creates a codec from the current secret and any previous secrets
// that should still verify.
func NewCodec(key []byte, previous ...[]byte) (*Codec, error) {
	c := &Codec{}
	for _, k := range append([][]byte{key}, previous...) {
		kp, err := newKeyPair(k)
		if err != nil {
			return nil, err
		}
		c.keys = append(c.keys, kp)
	}
	return c, nil
}

func newKeyPair(key []byte) (keyPair, error) {
	if len(key) == 0 {
		return keyPair{}, errors.New("snapshot: empty key")
	}
	aesKey := key
	if len(aesKey) < 32 {
		// Derive a 32-byte key from the provided key
		h := sha256.Sum256(key)
		aesKey = h[:]
	}
	block, err := aes.NewCipher(aesKey[:32])
	if err != nil {
		return keyPair{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return keyPair{}, err
	}
	return keyPair{mac: key, gcm: gcm}, nil
}

// Seal builds a snapshot for the given state and signs it with the current key.
func (c *Codec) Seal(component string, state map[string]json.RawMessage) Snapshot {
	if state == nil {
		state = map[string]json.RawMessage{}
	}
	return Snapshot{
		Component: component,
		State:     state,
		Checksum:  checksum(c.keys[0].mac, component, state),
	}
}

// Verify recomputes the checksum and compares it in constant time against
// every known key.
func (c *Codec) Verify(s Snapshot) error {
	if s.Checksum == "" {
		return ErrTampered
	}
	// Compare encoded forms: decoding first would accept tokens that differ
	// only in base64 padding bits.
	got := []byte(s.Checksum)
	for _, kp := range c.keys {
		if hmac.Equal(got, []byte(checksum(kp.mac, s.Component, s.State))) {
			return nil
		}
	}
	return ErrTampered
}

// Encode turns a snapshot into its opaque token.
// If sensitive is true the token is encrypted; otherwise it is only encoded.
func (c *Codec) Encode(s Snapshot, sensitive bool) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&s); err != nil {
		return "", err
	}
	packed := buf.Bytes()
	if sensitive {
		return c.encrypt(packed)
	}
	return base64.RawURLEncoding.EncodeToString(packed), nil
}

// Decode parses a token. It does not verify the checksum; call Verify.
func (c *Codec) Decode(token string, sensitive bool) (Snapshot, error) {
	var s Snapshot
	if token == "" {
		return s, ErrInvalidFormat
	}

	var packed []byte
	var err error
	if sensitive {
		packed, err = c.decrypt(token)
	} else {
		packed, err = base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			err = ErrInvalidFormat
		}
	}
	if err != nil {
		return s, err
	}

	if err := msgpack.Unmarshal(packed, &s); err != nil {
		return s, ErrInvalidFormat
	}
	return s, nil
}

// Open decodes a token and verifies its checksum.
func (c *Codec) Open(token string, sensitive bool) (Snapshot, error) {
	s, err := c.Decode(token, sensitive)
	if err != nil {
		return s, err
	}
	if err := c.Verify(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// checksum is HMAC-SHA256 over length-prefixed component name and state
// entries in key order. Length prefixes keep ("ab","c") and ("a","bc") apart.
func checksum(key []byte, component string, state map[string]json.RawMessage) string {
	mac := hmac.New(sha256.New, key)
	writeField(mac, []byte(component))

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(keys)))
	mac.Write(n[:])
	for _, k := range keys {
		writeField(mac, []byte(k))
		writeField(mac, state[k])
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// encrypt creates an encrypted encoding using AES-256-GCM
func (c *Codec) encrypt(data []byte) (string, error) {
	gcm := c.keys[0].gcm
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// decrypt decodes and decrypts an encrypted string, trying every key.
func (c *Codec) decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidFormat
	}

	for _, kp := range c.keys {
		ns := kp.gcm.NonceSize()
		if len(ciphertext) < ns {
			return nil, ErrInvalidFormat
		}
		plain, err := kp.gcm.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
		if err == nil {
			return plain, nil
		}
	}
	return nil, ErrDecryptFailed
}
