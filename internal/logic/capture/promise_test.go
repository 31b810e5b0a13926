package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/multishot/internal/hw/camera"
)

func TestPromise_Resolve(t *testing.T) {
	p := NewPromise()
	if p.Settled() {
		t.Fatal("new promise should be pending")
	}
	p.Resolve([]Artifact{{Format: camera.JPEG}})

	artifacts, err := p.Wait(context.Background())
	if err != nil || len(artifacts) != 1 {
		t.Errorf("Wait = %v, %v", artifacts, err)
	}
	if !p.Settled() {
		t.Error("promise should be settled")
	}
}

func TestPromise_RejectNilError(t *testing.T) {
	p := NewPromise()
	p.Reject(nil)
	if _, err := p.Wait(context.Background()); err == nil {
		t.Error("rejecting with nil must still yield an error")
	}
}

func TestPromise_SecondSettlementRefused(t *testing.T) {
	p := NewPromise()
	first := errors.New("first")
	p.Reject(first)
	p.Resolve([]Artifact{{Format: camera.HEVC}})
	p.Reject(errors.New("third"))

	_, err := p.Wait(context.Background())
	if err != first {
		t.Errorf("err = %v, want first", err)
	}
	if p.ExtraSettlements() != 2 {
		t.Errorf("ExtraSettlements() = %d, want 2", p.ExtraSettlements())
	}
}

func TestPromise_ConcurrentSettlement(t *testing.T) {
	p := NewPromise()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				p.Resolve(nil)
			} else {
				p.Reject(errors.New("x"))
			}
		}(i)
	}
	wg.Wait()
	if p.ExtraSettlements() != 31 {
		t.Errorf("ExtraSettlements() = %d, want 31", p.ExtraSettlements())
	}
}

func TestPromise_WaitContext(t *testing.T) {
	p := NewPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	select {
	case <-p.Done():
		t.Error("Done should still be open")
	default:
	}
}
