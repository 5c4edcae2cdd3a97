package voice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func loud() []int16 {
	return []int16{1000, -1000, 1000, -1000}
}

func quiet() []int16 {
	return []int16{0, 0, 0, 0}
}

func feed(chunks ...[]int16) chan []int16 {
	ch := make(chan []int16, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	return ch
}

func TestAssembleEndsOnSilence(t *testing.T) {
	cfg := testConfig()
	chunks := feed(loud(), loud(), loud(), loud(), loud(), loud())

	got, err := Assemble(context.Background(), chunks, make(chan error, 1), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("chunks = %d, want 6", len(got))
	}
}

func TestAssembleEndsOnStreamClose(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceTimeout = time.Minute
	chunks := feed(loud(), loud(), quiet(), loud(), loud())
	close(chunks)

	got, err := Assemble(context.Background(), chunks, make(chan error, 1), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("chunks = %d, want 5", len(got))
	}
	if len(flatten(got)) != 20 {
		t.Errorf("flattened length = %d, want 20", len(flatten(got)))
	}
}

func TestAssembleTooShort(t *testing.T) {
	chunks := feed(loud(), loud(), loud(), loud())
	close(chunks)

	_, err := Assemble(context.Background(), chunks, make(chan error, 1), testConfig())
	if !errors.Is(err, ErrUtteranceTooShort) {
		t.Errorf("expected ErrUtteranceTooShort, got %v", err)
	}
}

func TestAssembleCeiling(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	cfg := testConfig()
	chunks := make(chan []int16)
	stop := make(chan struct{})
	defer close(stop)

	// A speaker that never pauses.
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				select {
				case chunks <- loud():
				case <-stop:
					return
				}
			}
		}
	}()

	_, err := Assemble(ctx, chunks, make(chan error, 1), cfg)
	if !errors.Is(err, ErrListenerCeiling) {
		t.Errorf("expected ErrListenerCeiling, got %v", err)
	}
}

func TestAssembleQuietChunksDoNotExtend(t *testing.T) {
	cfg := testConfig()
	chunks := make(chan []int16, 8)
	chunks <- loud()
	for i := 0; i < 5; i++ {
		chunks <- quiet()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				select {
				case chunks <- quiet():
				case <-stop:
					return
				}
			}
		}
	}()

	start := time.Now()
	got, err := Assemble(context.Background(), chunks, make(chan error, 1), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*cfg.SilenceTimeout {
		t.Errorf("quiet chunks kept the utterance open for %v", elapsed)
	}
	if len(got) < cfg.MinChunks {
		t.Errorf("chunks = %d", len(got))
	}
}

func TestAssembleDecodeError(t *testing.T) {
	chunks := feed(loud(), loud(), loud(), loud(), loud(), loud())
	close(chunks)
	errc := make(chan error, 1)
	errc <- errors.New("decode opus frame: corrupted")

	_, err := Assemble(context.Background(), chunks, errc, testConfig())
	if err == nil || errors.Is(err, ErrUtteranceTooShort) {
		t.Errorf("expected the decode error, got %v", err)
	}
}
