package p2p

import (
	"encoding/binary"
	"io"
)

// maxMessageLength caps a single encrypted data frame, mirroring the
// original protocol's MAX_MESSAGE_LENGTH of 2 MiB — large enough for a
// full block, small enough to bound a malicious peer's memory claim.
const maxMessageLength = 2 * 1024 * 1024

// writeFrame writes payload behind a 4-byte big-endian length prefix.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > maxMessageLength {
		return formatErrorf("frame length %d out of bounds", len(payload))
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return ioErrorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return ioErrorf("writing frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame, rejecting lengths outside
// (0, maxMessageLength] before allocating the buffer.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, ioErrorf("reading frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 || n > maxMessageLength {
		return nil, formatErrorf("frame length %d out of bounds", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ioErrorf("reading frame body: %w", err)
	}
	return buf, nil
}

func readRawKey(r io.Reader, out *[32]byte) error {
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return ioErrorf("reading hello key: %w", err)
	}
	return nil
}
