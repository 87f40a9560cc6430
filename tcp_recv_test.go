package netcore

import "testing"

func TestTCPSeqOrdering(t *testing.T) {
	if !tcpSeqLT(1, 2) {
		t.Fatal("1 should be < 2")
	}
	if tcpSeqLT(2, 1) {
		t.Fatal("2 should not be < 1")
	}
	if !tcpSeqLE(5, 5) {
		t.Fatal("5 should be <= 5")
	}

	// wraparound: sequence numbers are a 32-bit ring, so a number just
	// before the wrap is still "less than" one just after it.
	const almostMax = ^uint32(0) - 1 // 0xfffffffe
	if !tcpSeqLT(almostMax, 1) {
		t.Fatal("expected wraparound: 0xfffffffe should be < 1")
	}
	if tcpSeqLT(1, almostMax) {
		t.Fatal("expected wraparound: 1 should not be < 0xfffffffe")
	}
}

func TestTCPSeqInWindow(t *testing.T) {
	const recNext = 1000
	const win = 100

	if !tcpSeqInWindow(recNext, recNext, win) {
		t.Fatal("the first byte of the window must be in-window")
	}
	if !tcpSeqInWindow(recNext+win-1, recNext, win) {
		t.Fatal("the last byte of the window must be in-window")
	}
	if tcpSeqInWindow(recNext+win, recNext, win) {
		t.Fatal("one past the window must not be in-window")
	}
	if tcpSeqInWindow(recNext-1, recNext, win) {
		t.Fatal("one before the window must not be in-window")
	}
	if tcpSeqInWindow(recNext, recNext, 0) {
		t.Fatal("a zero-size window admits nothing")
	}
}

func TestTCPSeqInWindowAcrossWraparound(t *testing.T) {
	const recNext = ^uint32(0) - 10 // 10 bytes from wrapping
	const win = 50
	if !tcpSeqInWindow(recNext+20, recNext, win) {
		t.Fatal("a sequence number past the 32-bit wrap should still be in-window")
	}
}
