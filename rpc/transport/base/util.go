package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameMagic guards against talking to something that is not a grid endpoint
	frameMagic uint16 = 0x6772 // "gr"
	headerSize        = 6
	// MaxFrameSize is the largest accepted payload
	MaxFrameSize = 64 * 1024 * 1024
)

// writeFrame writes a frame to the connection with the format:
// - 2 bytes: magic (uint16, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint16(header[:2], frameMagic)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
func readFrame(conn io.Reader, buf []byte) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	if magic := binary.BigEndian.Uint16(header[:2]); magic != frameMagic {
		return nil, fmt.Errorf("invalid frame magic %#04x", magic)
	}

	contentLength := binary.BigEndian.Uint32(header[2:6])
	if contentLength > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", contentLength)
	}

	if contentLength == 0 {
		return []byte{}, nil
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return nil, err
	}

	return buf[:contentLength], nil
}
