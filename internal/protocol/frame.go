package protocol

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Separator terminates every frame on the wire. All bytes are distinct, so
// no proper prefix of it equals a proper suffix and a payload tail can never
// combine with the separator into an earlier match.
var Separator = []byte{0xff, 0x00, 0xfe, 0x01, 0xfd, 0x02, 0xfc, 0x03}

// ChunkSize is how much the receive pump asks for per read.
const ChunkSize = 8192

// MaxFrameSize caps both a compressed segment and its decompressed payload.
const MaxFrameSize = 4 << 20

// ErrFrameTooLarge is returned by Decode for a payload over MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Encode serializes msg to JSON, gzips it and appends the Separator.
func Encode(msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress message: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress message: %w", err)
	}
	buf.Write(Separator)
	return buf.Bytes(), nil
}

// Decode reverses Encode for one segment (the Separator already stripped).
// The result is guaranteed to be valid JSON.
func Decode(segment []byte) (json.RawMessage, error) {
	zr, err := gzip.NewReader(bytes.NewReader(segment))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed segment: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(io.LimitReader(zr, MaxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress segment: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: decompressed past %d bytes", ErrFrameTooLarge, MaxFrameSize)
	}
	if !json.Valid(payload) {
		return nil, errors.New("segment is not valid JSON")
	}
	return json.RawMessage(payload), nil
}

// Splitter accumulates a byte stream and cuts it into separator-delimited
// segments. A segment longer than MaxSize is discarded, including whatever
// of it is still to come, and counted in Dropped. The zero value is ready to
// use with a MaxSize of MaxFrameSize.
type Splitter struct {
	MaxSize int

	buf        []byte
	discarding bool
	dropped    int
}

// Feed appends chunk to the accumulation buffer and returns every complete
// segment in arrival order. The trailing partial segment is retained.
func (s *Splitter) Feed(chunk []byte) [][]byte {
	limit := s.MaxSize
	if limit <= 0 {
		limit = MaxFrameSize
	}
	s.buf = append(s.buf, chunk...)

	var segments [][]byte
	for {
		i := bytes.Index(s.buf, Separator)
		if i < 0 {
			break
		}
		switch {
		case s.discarding:
			s.discarding = false
			s.dropped++
		case i > limit:
			s.dropped++
		default:
			seg := make([]byte, i)
			copy(seg, s.buf[:i])
			segments = append(segments, seg)
		}
		s.buf = s.buf[i+len(Separator):]
	}

	if len(s.buf) > limit {
		// keep just enough to match a separator split across reads
		keep := len(Separator) - 1
		s.buf = append([]byte(nil), s.buf[len(s.buf)-keep:]...)
		s.discarding = true
		return segments
	}

	// compact so the backing array does not grow without bound
	if len(segments) > 0 {
		s.buf = append([]byte(nil), s.buf...)
	}
	return segments
}

// Buffered reports how many bytes of an incomplete segment are held.
func (s *Splitter) Buffered() int { return len(s.buf) }

// Dropped is the number of oversized segments discarded so far.
func (s *Splitter) Dropped() int { return s.dropped }
