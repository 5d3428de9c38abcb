package pools

import (
	"bytes"
	"sync"
	"testing"
)

func BenchmarkBufferPooling(b *testing.B) {
	b.Run("WithPool", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			buf := GetBuffer()
			buf.WriteString("test data for benchmarking buffer pools")
			for j := 0; j < 100; j++ {
				buf.WriteString("additional data")
			}
			PutBuffer(buf)
		}
	})

	b.Run("WithoutPool", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			buf := bytes.NewBuffer(nil)
			buf.WriteString("test data for benchmarking buffer pools")
			for j := 0; j < 100; j++ {
				buf.WriteString("additional data")
			}
		}
	})
}

func TestBufferPoolConcurrency(t *testing.T) {
	var wg sync.WaitGroup
	concurrency := 100
	iterations := 1000

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				buf := GetBuffer()
				buf.WriteString("concurrent test")
				PutBuffer(buf)
			}
		}()
	}

	wg.Wait()
}

func TestBufferPoolDiscardsOversizedBuffers(t *testing.T) {
	large := bytes.NewBuffer(make([]byte, 0, 2*1024*1024)) // 2MB
	PutBuffer(large)

	got := GetBuffer()
	if got.Cap() > 1024*1024 {
		t.Errorf("pool returned an oversized buffer: %d bytes", got.Cap())
	}
	PutBuffer(got)
}
