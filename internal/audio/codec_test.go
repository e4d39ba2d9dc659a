package audio

import "testing"

func TestMulawToPCM16_Length(t *testing.T) {
	mulaw := []byte{0x7F, 0xFF, 0x00, 0x80, 0x7E}
	pcm := MulawToPCM16(mulaw)

	if len(pcm) != len(mulaw)*2 {
		t.Errorf("expected PCM length %d, got %d", len(mulaw)*2, len(pcm))
	}

	for i := 0; i < len(mulaw); i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if sample < -32768 || sample > 32767 {
			t.Errorf("invalid PCM sample at index %d: %d", i, sample)
		}
	}
}

func TestPCM16ToMulaw_Length(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}

	mulaw, err := PCM16ToMulaw(pcm)
	if err != nil {
		t.Fatalf("PCM16ToMulaw failed: %v", err)
	}
	if len(mulaw) != len(samples) {
		t.Errorf("expected mulaw length %d, got %d", len(samples), len(mulaw))
	}
}

func TestPCM16ToMulaw_OddLength(t *testing.T) {
	_, err := PCM16ToMulaw([]byte{0x00})
	if err == nil {
		t.Error("expected error for odd-length PCM16 input")
	}
}

func TestMulawRoundTrip_Silence(t *testing.T) {
	mulaw := linearToMulaw(0)
	linear := mulawToLinear(mulaw)
	if linear < -10 || linear > 10 {
		t.Errorf("expected near-zero round-trip for silence, got %d", linear)
	}
}

func TestResampler_SameRate(t *testing.T) {
	r := NewResampler(8000, 8000)
	samples := []int16{1, 2, 3, 4, 5}
	out := r.Resample(samples)
	if len(out) != len(samples) {
		t.Errorf("expected unchanged length %d, got %d", len(samples), len(out))
	}
}

func TestResampler_Upsample(t *testing.T) {
	r := NewResampler(8000, 16000)
	samples := make([]int16, 160) // one 20ms carrier frame
	for i := range samples {
		samples[i] = int16(i)
	}

	out := r.Resample(samples)
	if len(out) < 310 || len(out) > 330 {
		t.Errorf("expected roughly doubled length, got %d", len(out))
	}
}

func TestResampler_Downsample(t *testing.T) {
	r := NewResampler(24000, 8000)
	samples := make([]int16, 2400)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	out := r.Resample(samples)
	expected := 800
	tolerance := 20
	if len(out) < expected-tolerance || len(out) > expected+tolerance {
		t.Errorf("expected length around %d, got %d", expected, len(out))
	}
}

func TestResampler_CarriesStateAcrossChunks(t *testing.T) {
	// Resampling one long buffer should produce roughly the same total
	// sample count as resampling it split into several smaller chunks,
	// because the resampler carries its fractional position forward.
	full := make([]int16, 800)
	for i := range full {
		full[i] = int16(i % 500)
	}

	whole := NewResampler(24000, 8000).Resample(full)

	chunked := NewResampler(24000, 8000)
	var split []int16
	for i := 0; i < len(full); i += 160 {
		end := i + 160
		if end > len(full) {
			end = len(full)
		}
		split = append(split, chunked.Resample(full[i:end])...)
	}

	tolerance := 4
	diff := len(whole) - len(split)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("expected chunked resample length close to whole-buffer length: whole=%d chunked=%d", len(whole), len(split))
	}
}

func TestFramer_PushExactMultiple(t *testing.T) {
	f := NewFramer(160)
	data := make([]byte, 320)
	frames := f.Push(data)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if len(f.Pending()) != 0 {
		t.Errorf("expected no pending bytes, got %d", len(f.Pending()))
	}
}

func TestFramer_PushAcrossChunkBoundary(t *testing.T) {
	f := NewFramer(160)

	first := f.Push(make([]byte, 100))
	if len(first) != 0 {
		t.Fatalf("expected no complete frames yet, got %d", len(first))
	}

	second := f.Push(make([]byte, 100))
	if len(second) != 1 {
		t.Fatalf("expected exactly 1 complete frame, got %d", len(second))
	}
	if len(f.Pending()) != 40 {
		t.Errorf("expected 40 pending bytes, got %d", len(f.Pending()))
	}
}

func TestFramer_Flush(t *testing.T) {
	f := NewFramer(160)
	f.Push(make([]byte, 50))

	flushed := f.Flush()
	if len(flushed) != 160 {
		t.Fatalf("expected flushed frame padded to 160 bytes, got %d", len(flushed))
	}
	if len(f.Pending()) != 0 {
		t.Errorf("expected pending cleared after flush, got %d", len(f.Pending()))
	}
}

func TestFramer_FlushEmpty(t *testing.T) {
	f := NewFramer(160)
	if flushed := f.Flush(); flushed != nil {
		t.Errorf("expected nil flush with no pending data, got %d bytes", len(flushed))
	}
}
