// Package encoder compresses 16 kHz mono PCM into FLAC fragments that can be
// forwarded while capture is still running.
package encoder

import "encoding/binary"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	BytesPerSecond = SampleRate * Channels * BitsPerSample / 8
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	// Drain returns the encoded bytes produced since the previous Drain.
	Drain() []byte
	Bytes() []byte
	TotalFrames() uint64
}

// Stream cuts little-endian PCM into BlockSize blocks and feeds them to an
// Encoder. It is not safe for concurrent use.
type Stream struct {
	enc     Encoder
	pending []int16
	odd     []byte
}

func NewStream(enc Encoder) *Stream {
	return &Stream{enc: enc}
}

// Write encodes every complete block in pcm and returns the new fragment,
// which may be empty.
func (s *Stream) Write(pcm []byte) ([]byte, error) {
	if len(s.odd) > 0 {
		pcm = append(s.odd, pcm...)
		s.odd = nil
	}
	n := len(pcm) &^ 1
	for i := 0; i < n; i += 2 {
		s.pending = append(s.pending, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	if n < len(pcm) {
		s.odd = []byte{pcm[n]}
	}
	for len(s.pending) >= BlockSize {
		if err := s.enc.EncodeBlock(s.pending[:BlockSize]); err != nil {
			return nil, err
		}
		s.pending = s.pending[BlockSize:]
	}
	return s.enc.Drain(), nil
}

// Flush encodes the trailing partial block, closes the encoder and returns
// the final fragment.
func (s *Stream) Flush() ([]byte, error) {
	if len(s.pending) > 0 {
		if err := s.enc.EncodeBlock(s.pending); err != nil {
			return nil, err
		}
		s.pending = nil
	}
	if err := s.enc.Close(); err != nil {
		return nil, err
	}
	return s.enc.Drain(), nil
}

// Duration returns seconds of audio encoded so far.
func (s *Stream) Duration() float64 {
	return float64(s.enc.TotalFrames()) / SampleRate
}
