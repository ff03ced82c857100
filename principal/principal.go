// Package principal implements the protocol's caller/owner identity type: a
// 20-byte value encoded with a human-readable bech32 prefix, the same shape
// the wider codebase uses for on-chain addresses.
package principal

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// HRP is the human-readable prefix every encoded principal carries.
const HRP = "proto"

// Principal identifies a caller or vault owner. The zero value is the
// well-known anonymous principal, rejected by every mutating endpoint.
type Principal struct {
	bytes [20]byte
}

// Anonymous is the well-known zero-value principal.
var Anonymous = Principal{}

// FromPublicKeyBytes derives a principal the way the wider codebase derives
// addresses from a public key: keccak256 of the uncompressed key, last 20
// bytes.
func FromPublicKeyBytes(pub []byte) Principal {
	hash := ethcrypto.Keccak256(pub)
	var p Principal
	copy(p.bytes[:], hash[len(hash)-20:])
	return p
}

// FromBytes wraps a raw 20-byte identity.
func FromBytes(b []byte) (Principal, error) {
	if len(b) != 20 {
		return Principal{}, fmt.Errorf("principal: must be 20 bytes, got %d", len(b))
	}
	var p Principal
	copy(p.bytes[:], b)
	return p, nil
}

// IsAnonymous reports whether this is the zero-value principal.
func (p Principal) IsAnonymous() bool { return p == Anonymous }

// Less reports whether p sorts before other, matching the ordering a
// BTreeMap<PrincipalId> gives over the raw byte representation.
func (p Principal) Less(other Principal) bool {
	return bytes.Compare(p.bytes[:], other.bytes[:]) < 0
}

// Bytes returns a copy of the underlying 20 bytes.
func (p Principal) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, p.bytes[:])
	return out
}

// String bech32-encodes the principal with the HRP prefix.
func (p Principal) String() string {
	conv, err := bech32.ConvertBits(p.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(HRP, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Parse decodes a bech32-encoded principal string.
func Parse(s string) (Principal, error) {
	hrp, decoded, err := bech32.Decode(s)
	if err != nil {
		return Principal{}, fmt.Errorf("principal: invalid bech32 string: %w", err)
	}
	if hrp != HRP {
		return Principal{}, fmt.Errorf("principal: unexpected prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Principal{}, fmt.Errorf("principal: error converting bits: %w", err)
	}
	return FromBytes(conv)
}

// MarshalText implements encoding.TextMarshaler so a Principal encodes as
// its bech32 string in JSON, including as a map key. The event log itself
// is RLP and uses EncodeRLP below.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EncodeRLP and DecodeRLP let Principal appear directly as a field in the
// RLP-encoded event log, carried as its raw 20 bytes.
func (p Principal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, p.bytes[:])
}

func (p *Principal) DecodeRLP(s *rlp.Stream) error {
	var b []byte
	if err := s.Decode(&b); err != nil {
		return err
	}
	parsed, err := FromBytes(b)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
