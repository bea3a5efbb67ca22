package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Native messaging size limits: browsers refuse host messages over 1 MiB and
// never send more than 64 MiB.
const (
	MaxOutboundFrame = 1 << 20
	MaxInboundFrame  = 64 << 20
)

// ErrFrameTooLarge is returned when a frame exceeds the size cap.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// ReadFrame reads one length-prefixed message (4-byte little-endian length,
// then that many bytes). It returns io.EOF only on a clean boundary.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame header: %w", err)
		}
		return nil, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if max > 0 && uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, max)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("truncated frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame writes data as one length-prefixed message.
func WriteFrame(w io.Writer, data []byte, max int) error {
	if max > 0 && len(data) > max {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(data), max)
	}

	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
