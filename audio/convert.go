package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// DecodeToPCM pipes encoded audio (MP3 from the speech service) through
// ffmpeg and yields 20ms frames of 48kHz stereo PCM. The ffmpeg process is
// bound to ctx and is always reaped.
func DecodeToPCM(
	ctx context.Context,
	encoded []byte,
) (<-chan []int16, <-chan error) {
	pcmOutput := make(chan []int16)
	errc := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)

	ffmpegCmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-")
	ffmpegCmd.Stdin = bytes.NewReader(encoded)
	var stderr bytes.Buffer
	ffmpegCmd.Stderr = &stderr

	stdout, err := ffmpegCmd.StdoutPipe()
	if err != nil {
		cancel()
		errc <- fmt.Errorf("ffmpeg stdout: %w", err)
		close(pcmOutput)
		return pcmOutput, errc
	}

	if err := ffmpegCmd.Start(); err != nil {
		cancel()
		errc <- fmt.Errorf("start ffmpeg: %w", err)
		close(pcmOutput)
		return pcmOutput, errc
	}

	go func() {
		defer close(pcmOutput)
		defer cancel()

		readErr := readFrames(ctx, stdout, pcmOutput)

		waitErr := ffmpegCmd.Wait()
		switch {
		case readErr != nil:
			errc <- readErr
		case ctx.Err() != nil:
		case waitErr != nil:
			errc <- fmt.Errorf("ffmpeg: %w: %s", waitErr, stderr.String())
		}
	}()

	return pcmOutput, errc
}

func readFrames(
	ctx context.Context,
	r io.Reader,
	out chan<- []int16,
) error {
	buffer := make([]byte, FrameSize*Channels*2)
	for {
		n, err := io.ReadFull(r, buffer)
		if n > 0 {
			select {
			case <-ctx.Done():
				io.Copy(io.Discard, r)
				return nil
			case out <- BytesToInt16(buffer[:n]):
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ffmpeg output: %w", err)
		}
	}
}
