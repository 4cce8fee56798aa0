// Package crypto provides the primitives consensus depends on: Ed25519
// signatures, SHA-256 hashing, and Merkle tree construction over the
// canonical encoding.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/stratumlabs/stratum/types"
)

// PrivateKey is an Ed25519 private key.
type PrivateKey = ed25519.PrivateKey

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// HashPair returns SHA-256(a || b), the interior-node combiner of the
// Merkle tree.
func HashPair(a, b types.Hash) types.Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateKey creates a new Ed25519 keypair.
func GenerateKey() (types.Pubkey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return types.Pubkey{}, nil, fmt.Errorf("generate key: %w", err)
	}
	var pk types.Pubkey
	copy(pk[:], pub)
	return pk, priv, nil
}

// KeyFromSeed derives a deterministic Ed25519 keypair from a 32-byte seed.
func KeyFromSeed(seed [32]byte) (types.Pubkey, PrivateKey) {
	priv := ed25519.NewKeyFromSeed(seed[:])
	var pk types.Pubkey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk, priv
}

// Sign signs message with sk per RFC 8032.
func Sign(sk PrivateKey, message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(sk, message))
	return sig
}

// Verify reports whether sig is a valid signature of message by pk.
func Verify(pk types.Pubkey, message []byte, sig types.Signature) bool {
	return ed25519.Verify(pk[:], message, sig[:])
}

// AddressFromPubkey derives a validator address: the last 20 bytes of
// SHA-256 of the public key.
func AddressFromPubkey(pk types.Pubkey) types.Address {
	digest := sha256.Sum256(pk[:])
	var addr types.Address
	copy(addr[:], digest[len(digest)-len(addr):])
	return addr
}

// PubkeyFromPrivate extracts the public key from an Ed25519 private key.
func PubkeyFromPrivate(sk PrivateKey) types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], sk.Public().(ed25519.PublicKey))
	return pk
}
