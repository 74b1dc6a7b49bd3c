package history

import (
	"sync"
	"testing"
)

func TestLogAppendAndLast(t *testing.T) {
	l := New[int]()
	if _, ok := l.Latest(); ok {
		t.Fatal("empty log should have no latest record")
	}
	for i := range 5 {
		l.Append(i)
	}
	if l.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", l.Len())
	}

	got := l.Last(2)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("Last(2) = %v, want [3 4]", got)
	}
	if all := l.Last(0); len(all) != 5 {
		t.Errorf("Last(0) should return all records, got %d", len(all))
	}
	if all := l.Last(50); len(all) != 5 {
		t.Errorf("Last(50) should cap at log length, got %d", len(all))
	}
	if v, ok := l.Latest(); !ok || v != 4 {
		t.Errorf("Latest = %d,%v want 4,true", v, ok)
	}
}

func TestLogLastReturnsCopy(t *testing.T) {
	l := From([]int{1, 2, 3})
	got := l.Last(0)
	got[0] = 99
	if again := l.Last(0); again[0] != 1 {
		t.Errorf("mutating a snapshot changed the log: %v", again)
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := New[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(i)
			_ = l.Last(3)
		}()
	}
	wg.Wait()
	if l.Len() != 50 {
		t.Errorf("expected 50 records, got %d", l.Len())
	}
}
