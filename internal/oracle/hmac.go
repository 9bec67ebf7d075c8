// Package oracle provides randomness sources for winner selection.
package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

var (
	// ErrUnavailable reports that no random value could be produced.
	ErrUnavailable = errors.New("oracle: unavailable")
	// ErrInvalidProof reports a proof that does not match its draw.
	ErrInvalidProof = errors.New("oracle: invalid proof")
)

// HMACOracle derives draws from a master secret. Each room gets its own
// HKDF-derived key and every draw for a room advances a nonce, so a retried
// draw yields a fresh value. Anyone holding the secret can recompute a draw
// from its proof.
type HMACOracle struct {
	id     settlement.Identity
	secret []byte

	mu     sync.Mutex
	nonces map[settlement.RoomID]uint64
}

var _ settlement.IdentifiedOracle = (*HMACOracle)(nil)

// NewHMACOracle creates an oracle that signs its responses as id.
func NewHMACOracle(id settlement.Identity, secret []byte) (*HMACOracle, error) {
	if !id.Valid() {
		return nil, errors.New("oracle: id is required")
	}
	if len(secret) < 16 {
		return nil, errors.New("oracle: secret must be at least 16 bytes")
	}
	return &HMACOracle{
		id:     id,
		secret: append([]byte(nil), secret...),
		nonces: make(map[settlement.RoomID]uint64),
	}, nil
}

func (o *HMACOracle) ID() settlement.Identity { return o.id }

func (o *HMACOracle) Draw(ctx context.Context, req settlement.DrawRequest) (settlement.RandomResponse, error) {
	if err := ctx.Err(); err != nil {
		return settlement.RandomResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	o.mu.Lock()
	nonce := o.nonces[req.RoomID]
	o.nonces[req.RoomID] = nonce + 1
	o.mu.Unlock()

	mac, err := o.sum(req, nonce)
	if err != nil {
		return settlement.RandomResponse{}, err
	}
	return settlement.RandomResponse{
		OracleID: o.id,
		Value:    binary.BigEndian.Uint64(mac[:8]),
		Proof:    strconv.FormatUint(nonce, 10) + ":" + hex.EncodeToString(mac),
	}, nil
}

// Verify recomputes the draw a proof claims and returns its value.
func (o *HMACOracle) Verify(req settlement.DrawRequest, proof string) (uint64, error) {
	nonceStr, macHex, ok := strings.Cut(proof, ":")
	if !ok {
		return 0, ErrInvalidProof
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return 0, ErrInvalidProof
	}
	claimed, err := hex.DecodeString(macHex)
	if err != nil {
		return 0, ErrInvalidProof
	}
	mac, err := o.sum(req, nonce)
	if err != nil {
		return 0, err
	}
	if !hmac.Equal(mac, claimed) {
		return 0, ErrInvalidProof
	}
	return binary.BigEndian.Uint64(mac[:8]), nil
}

func (o *HMACOracle) sum(req settlement.DrawRequest, nonce uint64) ([]byte, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, o.secret, []byte(o.id), []byte("lottery-room:"+req.RoomID.String()))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive room key: %w", err)
	}
	h := hmac.New(sha256.New, key)
	fmt.Fprintf(h, "%d:%d:%d:%d", req.RoomID, req.Entries, req.Total, nonce)
	return h.Sum(nil), nil
}
