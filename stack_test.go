package netcore_test

import (
	"testing"

	"github.com/erikvoss/netcore"
	"github.com/erikvoss/netcore/internal"
)

func TestNewStackStartsAndStopsCleanly(t *testing.T) {
	s := netcore.NewStack(&internal.NullLogger{})
	if s.Pool() == nil {
		t.Fatal("expected a non-nil shared pool")
	}
	if s.Logger() == nil {
		t.Fatal("expected the logger passed to NewStack to be retained")
	}
	s.Close()
}

func TestNewStackWithConfigSizesThePool(t *testing.T) {
	cfg := netcore.StackConfig{PoolCapacity: 4, PoolBufSize: 256}
	s := netcore.NewStackWithConfig(&internal.NullLogger{}, cfg)
	defer s.Close()

	var frames []*netcore.Frame
	for i := 0; i < 4; i++ {
		f := s.Pool().AllocNoFail()
		if f == nil {
			t.Fatalf("expected allocation %d of %d to succeed", i+1, cfg.PoolCapacity)
		}
		frames = append(frames, f)
	}
	if f := s.Pool().AllocNoFail(); f != nil {
		t.Fatal("expected the pool to be exhausted at its configured capacity")
	}
	for _, f := range frames {
		f.Release()
	}
}
