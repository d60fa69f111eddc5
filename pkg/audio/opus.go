package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus packets from WebRTC-style senders are 48 kHz stereo at 20 ms.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusFormat is the PCM format produced by [OpusDecoder].
var OpusFormat = Format{SampleRate: opusSampleRate, Channels: opusChannels}

// OpusDecoder turns a sequence of Opus packets from one sender into PCM.
// Each sender needs its own decoder so that decoder state stays consistent
// across consecutive packets.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder producing [OpusFormat] samples.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into interleaved PCM samples.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return pcm, nil
}
