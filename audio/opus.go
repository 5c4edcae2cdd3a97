package audio

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 48000
	Channels   = 2

	// FrameSize is the number of samples per channel in a 20ms frame.
	FrameSize = 960

	// maxFrameSize is 120ms per channel, the largest frame Opus produces.
	maxFrameSize = 5760
)

// silenceFrame is the payload Discord clients send for a few frames after
// a speaker stops transmitting.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

func IsSilenceFrame(payload []byte) bool {
	return bytes.Equal(payload, silenceFrame)
}

type FrameDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

type FrameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

func NewOpusDecoder() (FrameDecoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return dec, nil
}

func NewOpusEncoder(bitrate int) (FrameEncoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("set opus bitrate: %w", err)
		}
	}
	return enc, nil
}

// DecodeOpusStream turns a stream of Opus frames into a lazy sequence of
// interleaved PCM chunks, one per frame.
//
// The chunk channel is closed when frames is closed, when ctx is done, or
// after the first decode error. A decode error is terminal and is reported
// once on the error channel, which is buffered.
func DecodeOpusStream(
	ctx context.Context,
	dec FrameDecoder,
	frames <-chan []byte,
) (<-chan []int16, <-chan error) {
	chunks := make(chan []int16)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		buf := make([]int16, maxFrameSize*Channels)

		for {
			var frame []byte
			var ok bool
			select {
			case <-ctx.Done():
				return
			case frame, ok = <-frames:
				if !ok {
					return
				}
			}

			n, err := dec.Decode(frame, buf)
			if err != nil {
				errc <- fmt.Errorf("decode opus frame: %w", err)
				return
			}

			chunk := make([]int16, n*Channels)
			copy(chunk, buf[:n*Channels])

			select {
			case <-ctx.Done():
				return
			case chunks <- chunk:
			}
		}
	}()

	return chunks, errc
}

// EncodeOpusStream encodes 20ms PCM frames to Opus packets. Short frames are
// padded with silence; frames that fail to encode are skipped.
func EncodeOpusStream(
	ctx context.Context,
	enc FrameEncoder,
	pcmInput <-chan []int16,
) <-chan []byte {
	opusOutput := make(chan []byte)

	go func() {
		defer close(opusOutput)
		buf := make([]byte, 4000)

		for {
			select {
			case <-ctx.Done():
				return
			case pcm, ok := <-pcmInput:
				if !ok {
					return
				}

				if len(pcm) < FrameSize*Channels {
					pcm = append(pcm, make([]int16, FrameSize*Channels-len(pcm))...)
				}

				n, err := enc.Encode(pcm, buf)
				if err != nil {
					continue
				}

				packet := make([]byte, n)
				copy(packet, buf[:n])

				select {
				case <-ctx.Done():
					return
				case opusOutput <- packet:
				}
			}
		}
	}()

	return opusOutput
}
