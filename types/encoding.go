package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Canonical encoding: fixed field order, big-endian integers, fixed-size
// byte arrays written raw, variable-length lists prefixed with a big-endian
// uint32 count. Every digest in the system is computed over this encoding;
// it is also the wire and storage format.

var ErrShortBuffer = errors.New("canonical decode: short buffer")

const maxListLen = 1 << 20

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// AppendCanonical appends the checkpoint's canonical encoding.
func (c Checkpoint) AppendCanonical(b []byte) []byte {
	b = appendUint64(b, uint64(c.Epoch))
	return append(b, c.Root[:]...)
}

// AppendCanonical appends the transaction's canonical encoding, signature
// included.
func (tx *Transaction) AppendCanonical(b []byte) []byte {
	b = tx.appendUnsigned(b)
	return append(b, tx.Signature[:]...)
}

func (tx *Transaction) appendUnsigned(b []byte) []byte {
	b = append(b, tx.From[:]...)
	b = append(b, tx.To[:]...)
	b = appendUint64(b, tx.Amount)
	b = appendUint64(b, tx.Nonce)
	b = appendUint64(b, tx.GasLimit)
	b = appendUint64(b, tx.GasPrice)
	return b
}

// appendCanonical appends the header encoding. With zeroSig the signature
// field is written as 64 zero bytes; that form is the block's signing root
// and hash preimage.
func (h *BlockHeader) appendCanonical(b []byte, zeroSig bool) []byte {
	b = appendUint64(b, h.Height)
	b = append(b, h.PreviousHash[:]...)
	b = append(b, h.MerkleRoot[:]...)
	b = append(b, h.StateRoot[:]...)
	b = appendUint64(b, h.Timestamp)
	b = appendUint64(b, uint64(h.Slot))
	b = appendUint64(b, uint64(h.Epoch))
	b = append(b, h.Proposer[:]...)
	b = appendUint64(b, h.GasLimit)
	b = appendUint64(b, h.GasUsed)
	if zeroSig {
		var zero Signature
		b = append(b, zero[:]...)
	} else {
		b = append(b, h.ProposerSignature[:]...)
	}
	return b
}

// AppendCanonical appends the full block encoding: header (with signature),
// transaction list, attestation list.
func (b *Block) AppendCanonical(buf []byte) []byte {
	buf = b.Header.appendCanonical(buf, false)
	buf = appendUint32(buf, uint32(len(b.Transactions)))
	for i := range b.Transactions {
		buf = b.Transactions[i].AppendCanonical(buf)
	}
	buf = appendUint32(buf, uint32(len(b.Attestations)))
	for i := range b.Attestations {
		buf = b.Attestations[i].AppendCanonical(buf)
	}
	return buf
}

// AppendCanonical appends the attestation's canonical encoding, signature
// included.
func (a *Attestation) AppendCanonical(b []byte) []byte {
	b = a.appendUnsigned(b)
	return append(b, a.Signature[:]...)
}

func (a *Attestation) appendUnsigned(b []byte) []byte {
	b = appendUint64(b, uint64(a.Slot))
	b = appendUint64(b, a.CommitteeIndex)
	b = appendUint64(b, uint64(a.ValidatorIndex))
	b = append(b, a.BeaconBlockRoot[:]...)
	b = a.Source.AppendCanonical(b)
	b = a.Target.AppendCanonical(b)
	return b
}

// decoder consumes a canonical byte stream. The first failure sticks; all
// subsequent reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	if d.off+8 > len(d.buf) {
		d.err = ErrShortBuffer
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if d.off+4 > len(d.buf) {
		d.err = ErrShortBuffer
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) hash() (h Hash)           { copy(h[:], d.bytes(len(h))); return }
func (d *decoder) address() (a Address)     { copy(a[:], d.bytes(len(a))); return }
func (d *decoder) signature() (s Signature) { copy(s[:], d.bytes(len(s))); return }

func (d *decoder) checkpoint() Checkpoint {
	return Checkpoint{Epoch: Epoch(d.uint64()), Root: d.hash()}
}

func (d *decoder) count() int {
	n := d.uint32()
	if d.err == nil && n > maxListLen {
		d.err = fmt.Errorf("canonical decode: list length %d exceeds cap", n)
		return 0
	}
	return int(n)
}

func (d *decoder) transaction() Transaction {
	return Transaction{
		From:      d.address(),
		To:        d.address(),
		Amount:    d.uint64(),
		Nonce:     d.uint64(),
		GasLimit:  d.uint64(),
		GasPrice:  d.uint64(),
		Signature: d.signature(),
	}
}

func (d *decoder) attestation() Attestation {
	return Attestation{
		Slot:            Slot(d.uint64()),
		CommitteeIndex:  d.uint64(),
		ValidatorIndex:  ValidatorIndex(d.uint64()),
		BeaconBlockRoot: d.hash(),
		Source:          d.checkpoint(),
		Target:          d.checkpoint(),
		Signature:       d.signature(),
	}
}

func (d *decoder) header() BlockHeader {
	return BlockHeader{
		Height:            d.uint64(),
		PreviousHash:      d.hash(),
		MerkleRoot:        d.hash(),
		StateRoot:         d.hash(),
		Timestamp:         d.uint64(),
		Slot:              Slot(d.uint64()),
		Epoch:             Epoch(d.uint64()),
		Proposer:          d.address(),
		GasLimit:          d.uint64(),
		GasUsed:           d.uint64(),
		ProposerSignature: d.signature(),
	}
}

// DecodeBlock parses a canonical block encoding.
func DecodeBlock(buf []byte) (*Block, error) {
	d := &decoder{buf: buf}
	b := &Block{Header: d.header()}
	for n := d.count(); n > 0 && d.err == nil; n-- {
		b.Transactions = append(b.Transactions, d.transaction())
	}
	for n := d.count(); n > 0 && d.err == nil; n-- {
		b.Attestations = append(b.Attestations, d.attestation())
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode block: %w", d.err)
	}
	if d.off != len(buf) {
		return nil, fmt.Errorf("decode block: %d trailing bytes", len(buf)-d.off)
	}
	return b, nil
}

// DecodeAttestation parses a canonical attestation encoding.
func DecodeAttestation(buf []byte) (*Attestation, error) {
	d := &decoder{buf: buf}
	a := d.attestation()
	if d.err != nil {
		return nil, fmt.Errorf("decode attestation: %w", d.err)
	}
	if d.off != len(buf) {
		return nil, fmt.Errorf("decode attestation: %d trailing bytes", len(buf)-d.off)
	}
	return &a, nil
}

// DecodeCheckpoint parses a canonical checkpoint encoding.
func DecodeCheckpoint(buf []byte) (Checkpoint, error) {
	d := &decoder{buf: buf}
	c := d.checkpoint()
	if d.err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", d.err)
	}
	return c, nil
}
