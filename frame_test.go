package netcore

import "testing"

func TestFramePrependConsumeRoundTrip(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	if !f.Append([]byte("payload")) {
		t.Fatal("Append failed")
	}
	hdr := f.Prepend(4)
	if hdr == nil {
		t.Fatal("Prepend failed")
	}
	copy(hdr, []byte{1, 2, 3, 4})

	if got, want := f.Len(), 4+len("payload"); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	got := f.Consume(4)
	if got == nil || got[0] != 1 || got[3] != 4 {
		t.Fatalf("Consume returned %v", got)
	}
	if string(f.Bytes()) != "payload" {
		t.Fatalf("Bytes() = %q, want %q", f.Bytes(), "payload")
	}
}

func TestFramePrependFailsPastHeadroom(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	if f.Prepend(HeadroomMax + 1) != nil {
		t.Fatal("expected Prepend to fail past HeadroomMax")
	}
}

func TestFrameAppendFailsPastTailroom(t *testing.T) {
	p := NewPool(1, 8, nil)
	f := p.MustAlloc()
	defer f.Release()

	if f.Append(make([]byte, 9)) {
		t.Fatal("expected Append to fail past Tailroom")
	}
}

func TestFrameTruncate(t *testing.T) {
	p := NewPool(1, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	f.Append([]byte("0123456789"))
	f.Truncate(4)
	if string(f.Bytes()) != "0123" {
		t.Fatalf("Bytes() = %q, want %q", f.Bytes(), "0123")
	}
}

func TestFrameClonePreservesHeadroomAndContent(t *testing.T) {
	p := NewPool(2, 128, nil)
	f := p.MustAlloc()
	defer f.Release()

	f.Prepend(4)
	f.Append([]byte("body"))

	clone := f.Clone()
	if clone == nil {
		t.Fatal("Clone returned nil")
	}
	defer clone.Release()

	if clone.Headroom() != f.Headroom() {
		t.Fatalf("clone headroom %d, want %d", clone.Headroom(), f.Headroom())
	}
	if string(clone.Bytes()) != string(f.Bytes()) {
		t.Fatalf("clone content %q, want %q", clone.Bytes(), f.Bytes())
	}

	// mutating the original must not affect the clone (deep copy).
	copy(f.Bytes(), "XXXX")
	if string(clone.Bytes()) == string(f.Bytes()) {
		t.Fatal("clone shares storage with the original")
	}
}

func TestPoolExhaustionAndRelease(t *testing.T) {
	p := NewPool(1, 64, nil)
	f1 := p.AllocNoFail()
	if f1 == nil {
		t.Fatal("expected first allocation to succeed")
	}
	if f2 := p.AllocNoFail(); f2 != nil {
		t.Fatal("expected pool to be exhausted")
	}
	if got := p.Outstanding(); got != 1 {
		t.Fatalf("Outstanding() = %d, want 1", got)
	}
	f1.Release()
	if got := p.Outstanding(); got != 0 {
		t.Fatalf("Outstanding() = %d, want 0 after release", got)
	}
	if p.AllocNoFail() == nil {
		t.Fatal("expected allocation to succeed after release")
	}
}
