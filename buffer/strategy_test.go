package buffer

import (
	"testing"
	"time"
)

func TestSizeLimitedStrategyFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSizeLimitedStrategy(3)
	s.Start(func() { fired <- struct{}{} })

	s.Observe(2)
	select {
	case <-fired:
		t.Fatal("should not fire below limit")
	default:
	}

	s.Observe(3)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected strategy to fire at limit")
	}
}

func TestLoopingStrategyFiresOnTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewLoopingStrategy(10 * time.Millisecond)
	s.Start(func() { fired <- struct{}{} })
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected timer to fire")
	}
}
