package ring

import "testing"

func TestPushPopOrder(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	if r.Push(99) {
		t.Fatalf("push into full ring must fail")
	}
	for i := 0; i < 4; i++ {
		var out int
		if !r.Pop(&out) {
			t.Fatalf("pop %d failed", i)
		}
		if out != i {
			t.Fatalf("pop order violated: got %d want %d", out, i)
		}
	}
	var out int
	if r.Pop(&out) {
		t.Fatalf("pop from empty ring must fail")
	}
}

func TestCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := New[int](5)
	if r.Capacity() != 8 {
		t.Fatalf("capacity = %d, want 8", r.Capacity())
	}
	r2 := New[int](1)
	if r2.Capacity() != 2 {
		t.Fatalf("capacity = %d, want 2 (minimum)", r2.Capacity())
	}
}

func TestZeroCopySlots(t *testing.T) {
	r := New[string](2)
	slot, ok := r.TryAcquireProducerSlot()
	if !ok {
		t.Fatal("acquire failed")
	}
	*slot = "hello"
	r.CommitProducerSlot()

	peek, ok := r.PeekConsumerSlot()
	if !ok {
		t.Fatal("peek failed")
	}
	if *peek != "hello" {
		t.Fatalf("peek = %q", *peek)
	}
	r.ReleaseConsumerSlot()
	if !r.Empty() {
		t.Fatal("ring should be empty after release")
	}
}

func TestUsedFreeEmptyFull(t *testing.T) {
	r := New[int](4)
	if !r.Empty() || r.Full() {
		t.Fatal("new ring should be empty, not full")
	}
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	if !r.Full() || r.Empty() {
		t.Fatal("ring should be full after 4 pushes into capacity 4")
	}
	if r.Used() != 4 || r.Free() != 0 {
		t.Fatalf("used=%d free=%d, want 4/0", r.Used(), r.Free())
	}
}

func TestClearResetsRing(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if !r.Empty() {
		t.Fatal("ring should be empty after Clear")
	}
	if !r.Push(3) {
		t.Fatal("ring should accept pushes after Clear")
	}
}

func TestOverflowDropsNothingAlreadyCommitted(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	r.Push(2)
	if r.Push(3) {
		t.Fatal("push into full ring must report failure, not silently drop")
	}
	var out int
	r.Pop(&out)
	if out != 1 {
		t.Fatalf("first committed value lost: got %d", out)
	}
}
