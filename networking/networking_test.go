package networking

import (
	"bytes"
	"crypto/rand"
	"testing"

	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/stratumlabs/stratum/types"
)

func TestCompressRoundTrip(t *testing.T) {
	block := &types.Block{Header: types.BlockHeader{Height: 3, Slot: 9}}
	payload := block.AppendCanonical(nil)

	out, err := DecompressMessage(CompressMessage(payload))
	if err != nil {
		t.Fatalf("DecompressMessage: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("compress round trip lost data")
	}

	dec, err := types.DecodeBlock(out)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if dec.Hash() != block.Hash() {
		t.Error("decoded block hash mismatch")
	}
}

func TestMessageIDDistinguishesTopics(t *testing.T) {
	data := CompressMessage([]byte("payload"))
	blockTopic, attTopic := BlockTopic, AttestationTopic

	a := computePubsubMessageID(&pb.Message{Data: data, Topic: &blockTopic})
	b := computePubsubMessageID(&pb.Message{Data: data, Topic: &attTopic})
	if a == b {
		t.Error("same ID across topics")
	}
	if len(a) != 20 {
		t.Errorf("message ID length = %d, want 20", len(a))
	}

	// Invalid snappy payloads still get a stable ID.
	raw := []byte{0xff, 0xfe, 0xfd}
	c := computePubsubMessageID(&pb.Message{Data: raw, Topic: &blockTopic})
	d := computePubsubMessageID(&pb.Message{Data: raw, Topic: &blockTopic})
	if c != d {
		t.Error("message ID not deterministic for invalid snappy")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("blocks_by_hash request body")
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	out, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("frame round trip lost data")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResponse(&buf, respCodeSuccess, []byte("block bytes")); err != nil {
		t.Fatalf("writeResponse: %v", err)
	}
	code, data, err := readResponse(&buf)
	if err != nil {
		t.Fatalf("readResponse: %v", err)
	}
	if code != respCodeSuccess || string(data) != "block bytes" {
		t.Errorf("got code %#02x data %q", code, data)
	}

	buf.Reset()
	writeErrorResponse(&buf, respCodeNotFound)
	code, data, err = readResponse(&buf)
	if err != nil {
		t.Fatalf("readResponse error path: %v", err)
	}
	if code != respCodeNotFound || data != nil {
		t.Errorf("got code %#02x data %v, want not-found with no body", code, data)
	}
}

func TestParseBootnodes(t *testing.T) {
	_, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pid, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatalf("derive peer id: %v", err)
	}

	peers := ParseBootnodes([]string{
		"/ip4/10.0.0.1/udp/9000/quic-v1/p2p/" + pid.String(),
		"not-a-multiaddr",
		"/ip4/10.0.0.2/udp/9000/quic-v1", // missing peer ID
	})
	if len(peers) != 1 {
		t.Fatalf("parsed %d bootnodes, want 1", len(peers))
	}
	if peers[0].ID != pid {
		t.Errorf("peer ID = %s, want %s", peers[0].ID, pid)
	}
}
