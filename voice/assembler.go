package voice

import (
	"context"
	"errors"
	"time"

	"axiom/audio"
)

// Assemble collects decoded chunks for one utterance. Speech ends when no
// voiced chunk has arrived for cfg.SilenceTimeout, or when the stream closes.
//
// It returns ErrUtteranceTooShort for fewer than cfg.MinChunks chunks,
// ErrListenerCeiling when ctx hits its deadline, and the decode error when
// the stream ended on one.
func Assemble(
	ctx context.Context,
	chunks <-chan []int16,
	errc <-chan error,
	cfg Config,
) ([][]int16, error) {
	var collected [][]int16

	silence := time.NewTimer(cfg.SilenceTimeout)
	defer silence.Stop()

	finish := func() ([][]int16, error) {
		if len(collected) < cfg.MinChunks {
			return nil, ErrUtteranceTooShort
		}
		return collected, nil
	}

	stopped := func() ([][]int16, error) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrListenerCeiling
		}
		return nil, ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return stopped()

		case <-silence.C:
			return finish()

		case chunk, ok := <-chunks:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return nil, err
					}
				default:
				}
				if ctx.Err() != nil {
					return stopped()
				}
				return finish()
			}

			collected = append(collected, chunk)

			if !audio.IsSilent(chunk, cfg.SilenceRMS) {
				if !silence.Stop() {
					select {
					case <-silence.C:
					default:
					}
				}
				silence.Reset(cfg.SilenceTimeout)
			}
		}
	}
}

// flatten joins chunks into one interleaved PCM buffer.
func flatten(chunks [][]int16) []int16 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	pcm := make([]int16, 0, n)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}
	return pcm
}
