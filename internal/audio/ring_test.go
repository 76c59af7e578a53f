package audio

import (
	"bytes"
	"sync"
	"testing"
)

func TestRingEmpty(t *testing.T) {
	r := NewRing(1)
	if d := r.Duration(); d != 0 {
		t.Errorf("empty ring Duration = %v, want 0", d)
	}
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Errorf("empty ring Snapshot length = %d, want 0", len(snap))
	}
}

func TestRingWriteSnapshot(t *testing.T) {
	r := NewRing(1)
	data := []byte{1, 2, 3, 4, 5}
	r.Write(data)
	if got := r.Snapshot(); !bytes.Equal(got, data) {
		t.Errorf("Snapshot = %v, want %v", got, data)
	}
	// Snapshot must not drain
	if got := r.Snapshot(); !bytes.Equal(got, data) {
		t.Errorf("second Snapshot = %v, want %v", got, data)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	// Tiny ring: force capacity to 8 bytes via a sub-second window.
	r := &Ring{buf: make([]byte, 8)}
	r.Write([]byte{1, 2, 3, 4, 5, 6})
	r.Write([]byte{7, 8, 9, 10})
	want := []byte{3, 4, 5, 6, 7, 8, 9, 10}
	if got := r.Snapshot(); !bytes.Equal(got, want) {
		t.Errorf("Snapshot after wrap = %v, want %v", got, want)
	}
}

func TestRingOversizedWriteKeepsTail(t *testing.T) {
	r := &Ring{buf: make([]byte, 4)}
	r.Write([]byte{1, 2, 3, 4, 5, 6, 7})
	want := []byte{4, 5, 6, 7}
	if got := r.Snapshot(); !bytes.Equal(got, want) {
		t.Errorf("Snapshot = %v, want %v", got, want)
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing(1)
	r.Write([]byte{1, 2, 3})
	r.Clear()
	if len(r.Snapshot()) != 0 {
		t.Error("Snapshot after Clear not empty")
	}
	r.Write([]byte{9})
	if got := r.Snapshot(); !bytes.Equal(got, []byte{9}) {
		t.Errorf("Snapshot after Clear+Write = %v, want [9]", got)
	}
}

func TestRingDuration(t *testing.T) {
	r := NewRing(10)
	r.Write(make([]byte, BytesPerSecond*2))
	if d := r.Duration(); d != 2 {
		t.Errorf("Duration = %v, want 2", d)
	}
}

func TestRingLastSecondsRetained(t *testing.T) {
	r := NewRing(1) // one second capacity
	// Write three seconds; only the last second should survive.
	for i := 0; i < 3; i++ {
		chunk := make([]byte, BytesPerSecond)
		for j := range chunk {
			chunk[j] = byte(i)
		}
		r.Write(chunk)
	}
	snap := r.Snapshot()
	if len(snap) != BytesPerSecond {
		t.Fatalf("Snapshot length = %d, want %d", len(snap), BytesPerSecond)
	}
	for _, b := range snap {
		if b != 2 {
			t.Fatalf("retained byte = %d, want 2 (newest second)", b)
		}
	}
}

func TestRingConcurrentAccess(t *testing.T) {
	r := NewRing(0.01)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Write([]byte{byte(i), byte(i >> 8)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Snapshot()
			r.Duration()
		}
	}()
	wg.Wait()
}
