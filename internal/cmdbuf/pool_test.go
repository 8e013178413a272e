package cmdbuf

import (
	"testing"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

func TestGetStorage_SizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize uint32
		expectCap   int
	}{
		{"64KB bucket - small", 4096, 64 * 1024},
		{"64KB bucket - exact", 64 * 1024, 64 * 1024},
		{"128KB bucket - smaller", 65 * 1024, 128 * 1024},
		{"256KB bucket - exact", 256 * 1024, 256 * 1024},
		{"512KB bucket - smaller", 400 * 1024, 512 * 1024},
		{"1MB bucket - exact", 1024 * 1024, 1024 * 1024},
		{"1MB bucket - smaller", 800 * 1024, 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := GetStorage(tt.requestSize)
			if err != nil {
				t.Fatalf("GetStorage(%d) failed: %v", tt.requestSize, err)
			}
			if len(buf) != int(tt.requestSize) {
				t.Errorf("GetStorage(%d) returned len=%d, want %d", tt.requestSize, len(buf), tt.requestSize)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("GetStorage(%d) returned cap=%d, want %d", tt.requestSize, cap(buf), tt.expectCap)
			}
			PutStorage(buf)
		})
	}
}

func TestGetStorage_Limits(t *testing.T) {
	if _, err := GetStorage(0); !gpu.IsCode(err, gpu.CodeInvalidParameter) {
		t.Errorf("GetStorage(0) error = %v, want invalid parameter", err)
	}
	if _, err := GetStorage(1<<20 + 1); !gpu.IsCode(err, gpu.CodeCapacityExceeded) {
		t.Errorf("GetStorage(1MB+1) error = %v, want capacity exceeded", err)
	}
}

func TestPutStorage_NonStandardCap(t *testing.T) {
	buf := make([]byte, 100*1024)
	// This should not panic
	PutStorage(buf)
}

func TestNewCommandBufferAndRecycle(t *testing.T) {
	buf, err := NewCommandBuffer(7, gpu.ContextRender, 8192, 4)
	if err != nil {
		t.Fatalf("NewCommandBuffer failed: %v", err)
	}
	if buf.ID != 7 || buf.Context != gpu.ContextRender {
		t.Errorf("unexpected buffer identity: id=%d ctx=%v", buf.ID, buf.Context)
	}
	if buf.Remaining() != 8192 {
		t.Errorf("Remaining() = %d, want 8192", buf.Remaining())
	}
	if _, err := buf.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	Recycle(buf)
	if buf.Data != nil || buf.Used != 0 {
		t.Errorf("Recycle left data=%v used=%d", buf.Data != nil, buf.Used)
	}
	// Recycling twice is harmless
	Recycle(buf)
	Recycle(nil)
}

func BenchmarkGetStorage_64KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf, _ := GetStorage(64 * 1024)
		PutStorage(buf)
	}
}

func BenchmarkGetStorage_1MB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf, _ := GetStorage(1024 * 1024)
		PutStorage(buf)
	}
}

func BenchmarkMakeStorage_64KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = make([]byte, 64*1024)
	}
}
