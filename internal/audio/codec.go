// Package audio implements the codec primitives the carrier and vendor
// sessions share: G.711 mu-law <-> linear PCM16 conversion, linear-
// interpolation resampling that carries filter state across chunk
// boundaries, and fixed-size framing of an arbitrary byte stream into
// 20ms/160-byte carrier frames.
package audio

import "fmt"

// MulawToPCM16 decodes G.711 mu-law to 16-bit signed linear PCM, little-endian.
func MulawToPCM16(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := mulawToLinear(b)
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

// PCM16ToMulaw encodes little-endian 16-bit signed linear PCM to G.711 mu-law.
func PCM16ToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm16 length %d is not a multiple of 2", len(pcm))
	}
	mulaw := make([]byte, len(pcm)/2)
	for i := range mulaw {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		mulaw[i] = linearToMulaw(sample)
	}
	return mulaw, nil
}

// linearToMulaw converts one 16-bit linear PCM sample to 8-bit mu-law
// (ITU-T G.711).
func linearToMulaw(sample int16) byte {
	const (
		clip = 8158
		bias = 0x21
	)

	var sign byte
	magnitude := int32(sample)
	if sample < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	magnitude >>= 2
	if magnitude > clip {
		magnitude = clip
	}
	magnitude += bias

	var segment byte
	switch {
	case magnitude >= 0x1000:
		segment = 7
	case magnitude >= 0x800:
		segment = 6
	case magnitude >= 0x400:
		segment = 5
	case magnitude >= 0x200:
		segment = 4
	case magnitude >= 0x100:
		segment = 3
	case magnitude >= 0x80:
		segment = 2
	case magnitude >= 0x40:
		segment = 1
	default:
		segment = 0
	}

	mantissa := byte((magnitude >> (segment + 1)) & 0x0F)
	ulawByte := sign | (segment << 4) | mantissa
	return ^ulawByte
}

// mulawToLinear converts one 8-bit mu-law sample to 16-bit linear PCM.
func mulawToLinear(mulawByte byte) int16 {
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := (step - 33) << 2

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// Resampler performs linear-interpolation PCM16 resampling between two fixed
// rates for one direction of one call's audio stream. It is not safe for
// concurrent use; construct one per stream.
//
// Carrier audio arrives in arbitrarily-sized chunks (20ms carrier frames,
// larger vendor TTS chunks), so the resampler keeps the final input sample
// and fractional source position from the previous call and resumes from
// there, instead of restarting the interpolation at the chunk boundary.
type Resampler struct {
	inputRate    int
	outputRate   int
	frac         float64
	prevTail     int16
	havePrevTail bool
}

// NewResampler builds a Resampler. inputRate == outputRate is a valid,
// zero-cost no-op configuration.
func NewResampler(inputRate, outputRate int) *Resampler {
	return &Resampler{inputRate: inputRate, outputRate: outputRate}
}

// Resample converts one chunk of linear PCM16 samples, carrying filter state
// forward to the next call.
func (r *Resampler) Resample(samples []int16) []int16 {
	if r.inputRate == r.outputRate || len(samples) == 0 {
		return samples
	}

	step := float64(r.inputRate) / float64(r.outputRate)

	src := samples
	if r.havePrevTail {
		src = make([]int16, 0, len(samples)+1)
		src = append(src, r.prevTail)
		src = append(src, samples...)
	}

	var output []int16
	pos := r.frac
	for int(pos)+1 < len(src) {
		idx0 := int(pos)
		frac := pos - float64(idx0)
		v := float64(src[idx0])*(1-frac) + float64(src[idx0+1])*frac
		output = append(output, int16(v))
		pos += step
	}

	r.frac = pos - float64(len(src)-1)
	if r.frac < 0 {
		r.frac = 0
	}
	r.prevTail = samples[len(samples)-1]
	r.havePrevTail = true

	return output
}

// Framer splits an arbitrary byte stream into fixed-size frames, carrying a
// short trailing remainder forward to the next call so frame boundaries
// never split across Push calls.
type Framer struct {
	frameSize int
	pending   []byte
}

// NewFramer builds a Framer that emits frames of frameSize bytes (160 for a
// 20ms/8kHz mono mu-law carrier frame).
func NewFramer(frameSize int) *Framer {
	return &Framer{frameSize: frameSize}
}

// Push appends data and returns the ordered sequence of complete frames it
// produces. Bytes left over after the last complete frame are held for the
// next Push call.
func (f *Framer) Push(data []byte) [][]byte {
	f.pending = append(f.pending, data...)

	var frames [][]byte
	for len(f.pending) >= f.frameSize {
		frame := make([]byte, f.frameSize)
		copy(frame, f.pending[:f.frameSize])
		frames = append(frames, frame)
		f.pending = f.pending[f.frameSize:]
	}
	return frames
}

// Pending returns the bytes buffered so far that do not yet form a complete
// frame.
func (f *Framer) Pending() []byte {
	return f.pending
}

// Flush returns the buffered remainder zero-padded out to a full frame, and
// clears it. Used when a call ends with a partial trailing frame that still
// needs to be sent to the carrier.
func (f *Framer) Flush() []byte {
	if len(f.pending) == 0 {
		return nil
	}
	frame := make([]byte, f.frameSize)
	copy(frame, f.pending)
	f.pending = nil
	return frame
}
