package audio_test

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/earsense/pkg/audio"
	"github.com/MrWong99/earsense/pkg/audio/mock"
)

func TestDownmix(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := audio.Downmix([]int16{100, 200, -100, -200}, 2)
	want := []int16{150, -150}
	if !slices.Equal(got, want) {
		t.Errorf("Downmix = %v, want %v", got, want)
	}
}

func TestDownmix_NoOverflow(t *testing.T) {
	got := audio.Downmix([]int16{32767, 32767, -32768, -32768}, 2)
	want := []int16{32767, -32768}
	if !slices.Equal(got, want) {
		t.Errorf("Downmix = %v, want %v", got, want)
	}
}

func TestUpmix(t *testing.T) {
	got := audio.Upmix([]int16{100, 200, 300}, 2)
	want := []int16{100, 100, 200, 200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("Upmix = %v, want %v", got, want)
	}
}

func TestResampleMono_SameRate(t *testing.T) {
	in := []int16{100, 200, 300}
	out := audio.ResampleMono(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("expected same slice for matching rate")
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	got := audio.ResampleMono([]int16{100, 200, 300, 400, 500, 600}, 48000, 16000)
	want := []int16{100, 400}
	if !slices.Equal(got, want) {
		t.Errorf("ResampleMono = %v, want %v", got, want)
	}
}

func TestResampler_ChunkedMatchesWhole(t *testing.T) {
	in := make([]int16, 960*6)
	for i := range in {
		in[i] = int16((i * 37) % 2000)
	}

	whole := audio.NewResampler(48000, 16000, 1).Process(in)

	r := audio.NewResampler(48000, 16000, 1)
	var chunked []int16
	for start := 0; start < len(in); start += 700 {
		chunked = append(chunked, r.Process(in[start:min(start+700, len(in))])...)
	}
	if !slices.Equal(whole, chunked) {
		t.Fatalf("chunked output differs: %d vs %d samples", len(chunked), len(whole))
	}
}

func TestResampler_Upsample(t *testing.T) {
	r := audio.NewResampler(16000, 48000, 1)
	first := r.Process([]int16{1000, 2000})
	if !slices.Equal(first, []int16{1000, 1333, 1666}) {
		t.Errorf("first chunk = %v", first)
	}
	// The interpolation between 2000 and 3000 continues across the boundary.
	second := r.Process([]int16{3000})
	if !slices.Equal(second, []int16{2000, 2333, 2666}) {
		t.Errorf("second chunk = %v", second)
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Mono16k}
	in := []int16{100, 200}
	out := conv.Convert(in, audio.Mono16k)
	if &out[0] != &in[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestFormatConverter_OpusToMono16k(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Mono16k}
	// 20 ms of 48 kHz stereo.
	in := make([]int16, 960*2)
	out := conv.Convert(in, audio.OpusFormat)
	// Every third of 960 frames; the last one interpolates inside the chunk.
	if len(out) != 320 {
		t.Errorf("got %d samples, want 320", len(out))
	}
}

func TestConvertStream(t *testing.T) {
	src := &mock.Stream{
		FormatResult: audio.Format{SampleRate: 32000, Channels: 2},
		Chunks: [][]int16{
			{10, 30, 10, 30, 10, 30, 10, 30},
			{50, 70, 50, 70},
		},
	}
	s := audio.ConvertStream(src, audio.Mono16k)
	if s.Format() != audio.Mono16k {
		t.Fatalf("Format = %v, want %v", s.Format(), audio.Mono16k)
	}
	first, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !slices.Equal(first, []int16{20, 20}) {
		t.Errorf("first = %v, want [20 20]", first)
	}
	second, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !slices.Equal(second, []int16{60}) {
		t.Errorf("second = %v, want [60]", second)
	}
}

func TestConvertStream_SameFormatUnwrapped(t *testing.T) {
	src := &mock.Stream{}
	if audio.ConvertStream(src, audio.Mono16k) != audio.Stream(src) {
		t.Error("matching format must return the stream itself")
	}
}
