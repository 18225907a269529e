package protocol

import "testing"

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("Expected position 3, got %d", scratch.CurPosition())
	}

	scratch.Output([]byte{4, 5})
	scratch.Update(0, 9)
	result := scratch.Result()
	if len(result) != 5 || result[0] != 9 {
		t.Errorf("Expected [9 2 3 4 5], got %v", result)
	}

	since := scratch.DataSince(2)
	if len(since) != 3 || since[0] != 3 {
		t.Errorf("DataSince(2): expected [3 4 5], got %v", since)
	}
	if scratch.DataSince(6) != nil {
		t.Error("DataSince past the end should be nil")
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if fifo.Available() != 0 || fifo.Free() != 9 {
		t.Errorf("Empty FIFO: available %d, free %d", fifo.Available(), fifo.Free())
	}

	// Size 10 stores 9, one slot reserved
	big := make([]byte, 12)
	if written := fifo.Write(big); written != 9 {
		t.Errorf("Expected to write 9 bytes, wrote %d", written)
	}

	fifo.Pop(4)
	if fifo.Available() != 5 {
		t.Errorf("After popping 4, expected 5 available, got %d", fifo.Available())
	}
}

func TestFifoBufferWrappedData(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Pop(2)

	// Write wraps around the end of the backing array
	if written := fifo.Write([]byte{5, 6}); written != 2 {
		t.Errorf("Expected to write 2 bytes, wrote %d", written)
	}

	data := fifo.Data()
	expected := []byte{3, 4, 5, 6}
	if len(data) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, data)
	}
	for i := range expected {
		if data[i] != expected[i] {
			t.Errorf("Wrapped data mismatch: expected %v, got %v", expected, data)
			break
		}
	}
}
