package crypto

import (
	"testing"

	"github.com/stratumlabs/stratum/types"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pk, sk := KeyFromSeed([32]byte{1})
	msg := []byte("slot 7 head vote")

	sig := Sign(sk, msg)
	if !Verify(pk, msg, sig) {
		t.Fatal("valid signature rejected")
	}

	// Flipping any bit of the message must invalidate the signature.
	for i := 0; i < len(msg); i++ {
		mutated := append([]byte(nil), msg...)
		mutated[i] ^= 0x01
		if Verify(pk, mutated, sig) {
			t.Fatalf("signature accepted after flipping message byte %d", i)
		}
	}

	// Same for the signature bytes.
	for i := 0; i < len(sig); i++ {
		mutated := sig
		mutated[i] ^= 0x01
		if Verify(pk, msg, mutated) {
			t.Fatalf("mutated signature byte %d accepted", i)
		}
	}
}

func TestKeyFromSeedDeterministic(t *testing.T) {
	pk1, _ := KeyFromSeed([32]byte{7})
	pk2, _ := KeyFromSeed([32]byte{7})
	if pk1 != pk2 {
		t.Error("same seed produced different keys")
	}
	pk3, _ := KeyFromSeed([32]byte{8})
	if pk1 == pk3 {
		t.Error("different seeds produced the same key")
	}
}

func TestAddressFromPubkey(t *testing.T) {
	pk, _ := KeyFromSeed([32]byte{3})
	addr := AddressFromPubkey(pk)
	if addr.IsZero() {
		t.Fatal("derived zero address")
	}

	digest := Hash(pk[:])
	var want types.Address
	copy(want[:], digest[12:])
	if addr != want {
		t.Errorf("address = %s, want last 20 bytes of sha256(pubkey) %s", addr, want)
	}
}

func TestMerkleRootEmptyAndSingle(t *testing.T) {
	if root := MerkleRoot(nil); !root.IsZero() {
		t.Errorf("empty input root = %s, want zero", root)
	}

	leaf := Hash([]byte("only"))
	if root := MerkleRoot([]types.Hash{leaf}); root != leaf {
		t.Errorf("single leaf root = %s, want the leaf itself", root)
	}
}

func TestMerkleOddDuplicatesLast(t *testing.T) {
	a, b, c := Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))
	got := MerkleRoot([]types.Hash{a, b, c})
	want := HashPair(HashPair(a, b), HashPair(c, c))
	if got != want {
		t.Errorf("odd-count root = %s, want %s", got, want)
	}
}

func TestMerkleProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 13} {
		leaves := make([]types.Hash, n)
		for i := range leaves {
			leaves[i] = Hash([]byte{byte(i)})
		}
		root := MerkleRoot(leaves)

		for i := 0; i < n; i++ {
			proof, err := MerkleProof(leaves, i)
			if err != nil {
				t.Fatalf("n=%d MerkleProof(%d): %v", n, i, err)
			}
			if !VerifyProof(root, leaves[i], i, proof) {
				t.Errorf("n=%d proof for leaf %d rejected", n, i)
			}
			// A proof must not verify for a different leaf or index.
			if n > 1 {
				if VerifyProof(root, leaves[(i+1)%n], i, proof) {
					t.Errorf("n=%d proof for leaf %d accepted wrong leaf", n, i)
				}
			}
		}
	}
}

func TestMerkleProofBadIndex(t *testing.T) {
	leaves := []types.Hash{Hash([]byte("x"))}
	if _, err := MerkleProof(leaves, 1); err == nil {
		t.Error("out-of-range index accepted")
	}
	if _, err := MerkleProof(leaves, -1); err == nil {
		t.Error("negative index accepted")
	}
}

func TestTransactionRootBindsList(t *testing.T) {
	txs := []types.Transaction{
		{Amount: 1, Nonce: 1},
		{Amount: 2, Nonce: 2},
	}
	root := TransactionRoot(txs)

	txs[1].Amount = 3
	if TransactionRoot(txs) == root {
		t.Error("transaction root unchanged after mutating a transaction")
	}
}
