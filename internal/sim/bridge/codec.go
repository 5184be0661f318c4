package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frames are a 4-byte big-endian length followed by a msgpack body.
const maxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

type request struct {
	Endpoint string         `msgpack:"endpoint"`
	Params   map[string]any `msgpack:"params,omitempty"`
}

type response struct {
	Error   string  `msgpack:"error,omitempty"`
	SimTime float64 `msgpack:"simTime"`
	Count   int     `msgpack:"count"`
	Wait    float64 `msgpack:"wait"`
	Phase   int     `msgpack:"phase"`
}

func writeFrame(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

func readFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > maxFrameSize {
		return ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}
