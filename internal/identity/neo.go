package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// DefaultSignatureWindow is how far a signed request timestamp may drift.
const DefaultSignatureWindow = 5 * time.Minute

// ValidateAddress checks that id is a Neo N3 address. It is suitable for
// settlement.WithIdentityValidator.
func ValidateAddress(id settlement.Identity) error {
	if _, err := address.StringToUint160(string(id)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// SignedMessage is the payload a Neo wallet signs to authenticate a request:
// the method and path, the unix timestamp, and the hex SHA-256 of the body.
func SignedMessage(method, path string, timestamp int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(method + " " + path + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + hex.EncodeToString(sum[:]))
}

// NeoVerifier authenticates requests signed by a Neo key pair.
type NeoVerifier struct {
	window time.Duration
	now    func() time.Time
}

// NewNeoVerifier creates a verifier. A non-positive window uses the default.
func NewNeoVerifier(window time.Duration) *NeoVerifier {
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	return &NeoVerifier{window: window, now: time.Now}
}

// Verify checks signatureHex over the request described by method, path,
// timestamp and body and returns the signer's address.
func (v *NeoVerifier) Verify(publicKeyHex, signatureHex, method, path, timestamp string, body []byte) (settlement.Identity, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift < -v.window || drift > v.window {
		return "", ErrExpiredSignature
	}

	pub, err := keys.NewPublicKeyFromString(publicKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return "", fmt.Errorf("%w: signature encoding", ErrInvalidSignature)
	}
	digest := sha256.Sum256(SignedMessage(method, path, ts, body))
	if !pub.Verify(sig, digest[:]) {
		return "", ErrInvalidSignature
	}
	return settlement.Identity(pub.Address()), nil
}
