// Package verification derives and resolves the integrity tokens embedded in
// generated prescription documents. A token binds a record id to its content
// hash under a server-side HMAC secret; anyone holding the token can ask the
// service whether the document it came from still reflects an authentic,
// current record.
package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"

	"github.com/medscript/medscript/internal/domain/prescription"
)

const (
	tokenVersion = 0x01
	tagLen       = 16
	payloadLen   = 1 + 16 + tagLen
)

// ErrMalformedToken is returned by Decode for tokens that are not valid
// base64url, have the wrong length, or carry an unknown version byte.
var ErrMalformedToken = errors.New("malformed verification token")

// Codec derives and parses tokens. The secret never leaves the server;
// tokens carry an HMAC tag, not the hash itself.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

func (c *Codec) tag(id uuid.UUID, contentHash string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(id[:])
	mac.Write([]byte(contentHash))
	return mac.Sum(nil)[:tagLen]
}

// Derive returns the token for a record. Deterministic: the same record
// always yields the same token.
func (c *Codec) Derive(p *prescription.Prescription) string {
	payload := make([]byte, 0, payloadLen)
	payload = append(payload, tokenVersion)
	payload = append(payload, p.ID[:]...)
	payload = append(payload, c.tag(p.ID, p.ContentHash)...)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// Decode recovers the record id and the claimed tag from a token. It does
// not consult storage; the tag is validated against a record by Verify.
func (c *Codec) Decode(token string) (uuid.UUID, []byte, error) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, nil, ErrMalformedToken
	}
	if len(payload) != payloadLen || payload[0] != tokenVersion {
		return uuid.Nil, nil, ErrMalformedToken
	}
	id, err := uuid.FromBytes(payload[1:17])
	if err != nil {
		return uuid.Nil, nil, ErrMalformedToken
	}
	return id, payload[17:], nil
}

// Verify reports whether the claimed tag matches the record's identity and
// content hash. Constant-time comparison.
func (c *Codec) Verify(p *prescription.Prescription, claimedTag []byte) bool {
	return subtle.ConstantTimeCompare(c.tag(p.ID, p.ContentHash), claimedTag) == 1
}
