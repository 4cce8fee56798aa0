package networking

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/stratumlabs/stratum/types"
)

const (
	BlocksByHashProtocolV1 = "/stratum/req/blocks_by_hash/1"

	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	maxMsgSize   = 10 * 1024 * 1024
)

// Response codes.
const (
	respCodeSuccess     byte = 0x00
	respCodeNotFound    byte = 0x01
	respCodeInvalidReq  byte = 0x02
	respCodeServerError byte = 0x03
)

var (
	ErrBlockUnavailable = errors.New("peer does not have the block")
	ErrBadResponse      = errors.New("malformed response")
)

// BlockSource provides read access to stored blocks for serving requests.
// The node satisfies it with a reader over persistent storage.
type BlockSource interface {
	BlockByHash(hash types.Hash) (*types.Block, bool)
}

// reqrespHandler serves and issues blocks-by-hash requests over a dedicated
// stream protocol. Frames are a length prefix followed by a snappy-block
// compressed canonical encoding.
type reqrespHandler struct {
	host   host.Host
	source BlockSource
	logger *slog.Logger
}

func newReqRespHandler(h host.Host, source BlockSource, logger *slog.Logger) *reqrespHandler {
	return &reqrespHandler{host: h, source: source, logger: logger}
}

func (r *reqrespHandler) register() {
	r.host.SetStreamHandler(protocol.ID(BlocksByHashProtocolV1), r.handleBlocksByHash)
}

func (r *reqrespHandler) handleBlocksByHash(stream network.Stream) {
	defer stream.Close()

	_ = stream.SetReadDeadline(time.Now().Add(readTimeout))
	data, err := readFrame(stream)
	if err != nil || len(data) != 32 {
		writeErrorResponse(stream, respCodeInvalidReq)
		return
	}
	var hash types.Hash
	copy(hash[:], data)

	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if r.source == nil {
		writeErrorResponse(stream, respCodeServerError)
		return
	}
	block, ok := r.source.BlockByHash(hash)
	if !ok {
		writeErrorResponse(stream, respCodeNotFound)
		return
	}
	if err := writeResponse(stream, respCodeSuccess, block.AppendCanonical(nil)); err != nil {
		r.logger.Debug("blocks_by_hash response failed", "error", err)
	}
}

// requestBlock asks one peer for a block by hash.
func (r *reqrespHandler) requestBlock(ctx context.Context, pid peer.ID, hash types.Hash) (*types.Block, error) {
	stream, err := r.host.NewStream(ctx, pid, protocol.ID(BlocksByHashProtocolV1))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeFrame(stream, hash[:]); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(readTimeout))
	code, data, err := readResponse(stream)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch code {
	case respCodeSuccess:
		return types.DecodeBlock(data)
	case respCodeNotFound:
		return nil, ErrBlockUnavailable
	default:
		return nil, fmt.Errorf("%w: code %#02x", ErrBadResponse, code)
	}
}

// writeFrame writes a length-prefixed snappy-compressed payload.
func writeFrame(w io.Writer, data []byte) error {
	compressed := CompressMessage(data)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(compressed)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// readFrame reads one length-prefixed snappy-compressed payload.
func readFrame(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxMsgSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	compressed := make([]byte, n)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return DecompressMessage(compressed)
}

func writeResponse(w io.Writer, code byte, data []byte) error {
	if _, err := w.Write([]byte{code}); err != nil {
		return err
	}
	return writeFrame(w, data)
}

func writeErrorResponse(w io.Writer, code byte) {
	_, _ = w.Write([]byte{code})
}

func readResponse(r io.Reader) (byte, []byte, error) {
	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return 0, nil, err
	}
	if code[0] != respCodeSuccess {
		return code[0], nil, nil
	}
	data, err := readFrame(r)
	return code[0], data, err
}
