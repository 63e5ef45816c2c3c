package resource

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/wasi-crypto/errors"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropTracker struct {
	dropped int
}

func (d *dropTracker) Drop() { d.dropped++ }

func isKind(err error, kind errors.Kind) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == kind
}

func TestTable_Basic(t *testing.T) {
	table := NewTable[string](KindOptions, 0)

	h, err := table.Insert("test")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h != 1 {
		t.Fatalf("Expected first handle to be 1, got %d", h)
	}

	val, err := table.Get(h)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	val, err = table.Remove(h)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}

	if _, err := table.Get(h); !isKind(err, errors.KindInvalidHandle) {
		t.Fatalf("Expected invalid handle after Remove, got %v", err)
	}
	if _, err := table.Remove(h); !isKind(err, errors.KindInvalidHandle) {
		t.Fatalf("Expected invalid handle on double Remove, got %v", err)
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	table := NewTable[int](KindArrayOutput, 0)

	// Handle 0 is always invalid
	if _, err := table.Get(0); !isKind(err, errors.KindInvalidHandle) {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, err := table.Remove(0); !isKind(err, errors.KindInvalidHandle) {
		t.Fatal("Handle 0 should fail Remove")
	}

	// Non-existent handles, including the top of the u32 space
	for _, h := range []Handle{1, 999, ^Handle(0)} {
		if _, err := table.Get(h); !isKind(err, errors.KindInvalidHandle) {
			t.Fatalf("Handle %d should be invalid", h)
		}
	}

	var e *errors.Error
	_, err := table.Get(42)
	if !stderrors.As(err, &e) {
		t.Fatalf("Expected *errors.Error, got %T", err)
	}
	if e.Resource != string(KindArrayOutput) || e.Handle != 42 {
		t.Fatalf("Error should name kind and handle, got %v", e)
	}
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable[int](KindOptions, 0)

	h1, _ := table.Insert(1)
	h2, _ := table.Insert(2)
	h3, _ := table.Insert(3)

	_, _ = table.Remove(h2)

	h4, _ := table.Insert(4)
	if h4 != h2 {
		t.Fatalf("Expected freed slot %d to be reused, got %d", h2, h4)
	}

	for h, want := range map[Handle]int{h1: 1, h3: 3, h4: 4} {
		got, err := table.Get(h)
		if err != nil || got != want {
			t.Fatalf("Get(%d) = %d, %v; want %d", h, got, err, want)
		}
	}
}

func TestTable_Exhausted(t *testing.T) {
	table := NewTable[int](KindKeyManager, 2)

	h1, err := table.Insert(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.Insert(2); err != nil {
		t.Fatal(err)
	}

	_, err = table.Insert(3)
	if !isKind(err, errors.KindExhausted) {
		t.Fatalf("Expected exhaustion, got %v", err)
	}
	if errors.ToErrno(err) != errors.ErrnoTooManyHandles {
		t.Fatalf("Expected too_many_handles, got %v", errors.ToErrno(err))
	}

	// Closing one handle frees capacity
	_, _ = table.Remove(h1)
	if _, err := table.Insert(3); err != nil {
		t.Fatalf("Insert after Remove should succeed: %v", err)
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTable[*dropTracker](KindOptions, 0)
	d := &dropTracker{}

	h, _ := table.Insert(d)
	if _, err := table.Remove(h); err != nil {
		t.Fatal(err)
	}
	if d.dropped != 1 {
		t.Fatalf("Expected Drop to be called once, got %d", d.dropped)
	}

	// A failed Remove must not drop again
	_, _ = table.Remove(h)
	if d.dropped != 1 {
		t.Fatalf("Drop called on stale handle")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string](KindOptions, 0)
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert("test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Fatal("Expected EventCreated for inserted handle")
	}
	if obs.events[0].Kind != KindOptions || obs.events[0].Live != 1 {
		t.Fatalf("Unexpected event payload: %+v", obs.events[0])
	}

	_, _ = table.Remove(h)
	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[1].Type != EventDropped || obs.events[1].Live != 0 {
		t.Fatal("Expected EventDropped with zero live handles")
	}

	table.Unsubscribe(obs)
	_, _ = table.Insert("test2")
	if len(obs.events) != 2 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

func TestTable_ClearAndClose(t *testing.T) {
	table := NewTable[*dropTracker](KindArrayOutput, 0)
	a, b := &dropTracker{}, &dropTracker{}
	_, _ = table.Insert(a)
	_, _ = table.Insert(b)

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Close")
	}
	if a.dropped != 1 || b.dropped != 1 {
		t.Fatal("Close should drop all live values")
	}

	_, err := table.Insert(&dropTracker{})
	if !isKind(err, errors.KindClosed) {
		t.Fatalf("Expected closed error after Close, got %v", err)
	}

	// Idempotent
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable[string](KindOptions, 0)
	_, _ = table.Insert("a")
	h, _ := table.Insert("b")
	_, _ = table.Insert("c")
	_, _ = table.Remove(h)

	var seen []string
	table.Each(func(_ Handle, v string) bool {
		seen = append(seen, v)
		return true
	})
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Fatalf("Each visited %v, want [a c]", seen)
	}

	count := 0
	table.Each(func(Handle, string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Expected early termination after 1 item, got %d", count)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int](KindOptions, 0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, err := table.Insert(id)
			if err != nil {
				t.Error(err)
				return
			}
			got, err := table.Get(h)
			if err != nil || got != id {
				t.Errorf("Get(%d) = %d, %v; want %d", h, got, err, id)
			}
			if _, err := table.Remove(h); err != nil {
				t.Error(err)
			}
		}(i)
	}

	wg.Wait()

	if table.Len() != 0 {
		t.Fatalf("Expected empty table, got %d", table.Len())
	}
}

func TestTable_LimitClamp(t *testing.T) {
	if got := NewTable[int](KindOptions, -1).Limit(); got != DefaultMaxHandles {
		t.Fatalf("Limit() = %d, want default %d", got, DefaultMaxHandles)
	}
}
