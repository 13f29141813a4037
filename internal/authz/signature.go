// Package authz verifies gasless authorizations: the plain purchase
// authorization signed with a personal-message prefix and the EIP-2612
// permit that accompanies it in the combined flow.
package authz

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
)

var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// Signature is a canonical secp256k1 signature with V in {27, 28}.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// ParseSignature accepts a 65-byte r||s||v signature or a 64-byte EIP-2098
// compact r||vs signature.
func ParseSignature(raw []byte) (Signature, error) {
	var sig Signature
	switch len(raw) {
	case 65:
		copy(sig.R[:], raw[:32])
		copy(sig.S[:], raw[32:64])
		v, err := normalizeV(raw[64])
		if err != nil {
			return Signature{}, err
		}
		sig.V = v
	case 64:
		copy(sig.R[:], raw[:32])
		copy(sig.S[:], raw[32:64])
		parity := sig.S[0] >> 7
		sig.S[0] &= 0x7f
		sig.V = 27 + parity
	default:
		return Signature{}, apperr.New(apperr.KindInputValidation, "parse signature", fmt.Sprintf("invalid signature length %d", len(raw)))
	}

	if new(big.Int).SetBytes(sig.S[:]).Cmp(secp256k1HalfN) > 0 {
		return Signature{}, apperr.New(apperr.KindInputValidation, "parse signature", "signature s value is not canonical")
	}
	return sig, nil
}

// ParseSignatureHex decodes a 0x-prefixed hex signature.
func ParseSignatureHex(s string) (Signature, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return Signature{}, apperr.Wrap(apperr.KindInputValidation, "parse signature", err)
	}
	return ParseSignature(raw)
}

func normalizeV(v byte) (uint8, error) {
	switch v {
	case 0, 1:
		return v + 27, nil
	case 27, 28:
		return v, nil
	default:
		return 0, apperr.New(apperr.KindInputValidation, "parse signature", fmt.Sprintf("invalid recovery id %d", v))
	}
}

// Bytes returns the 65-byte r||s||v form with V in {27, 28}.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// recoveryBytes returns the form crypto.SigToPub expects, with V in {0, 1}.
func (s Signature) recoveryBytes() []byte {
	out := s.Bytes()
	out[64] -= 27
	return out
}

// SignatureInput is the request-boundary shape of a signature: either a hex
// blob or discrete v/r/s fields. Resolve turns it into a Signature once so
// nothing downstream branches on the encoding.
type SignatureInput struct {
	Signature string `json:"signature,omitempty"`
	V         *uint8 `json:"v,omitempty"`
	R         string `json:"r,omitempty"`
	S         string `json:"s,omitempty"`
}

// Resolve validates the input and returns the canonical signature.
func (in SignatureInput) Resolve() (Signature, error) {
	hasBlob := strings.TrimSpace(in.Signature) != ""
	hasTriple := in.V != nil || in.R != "" || in.S != ""

	switch {
	case hasBlob && hasTriple:
		return Signature{}, apperr.New(apperr.KindInputValidation, "signature", "provide either signature or v/r/s, not both")
	case hasBlob:
		return ParseSignatureHex(in.Signature)
	case hasTriple:
		if in.V == nil || in.R == "" || in.S == "" {
			return Signature{}, apperr.New(apperr.KindInputValidation, "signature", "v, r and s are all required")
		}
		r, err := decodeWord(in.R)
		if err != nil {
			return Signature{}, apperr.Wrap(apperr.KindInputValidation, "signature r", err)
		}
		s, err := decodeWord(in.S)
		if err != nil {
			return Signature{}, apperr.Wrap(apperr.KindInputValidation, "signature s", err)
		}
		raw := make([]byte, 0, 65)
		raw = append(raw, r...)
		raw = append(raw, s...)
		raw = append(raw, *in.V)
		return ParseSignature(raw)
	default:
		return Signature{}, apperr.New(apperr.KindInputValidation, "signature", "signature is required")
	}
}

func decodeWord(s string) ([]byte, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return raw, nil
}
