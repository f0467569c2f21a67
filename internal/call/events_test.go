package call

import "testing"

func TestEmitterFanout(t *testing.T) {
	e := newEmitter()
	a, cancelA := e.subscribe()
	b, cancelB := e.subscribe()
	defer cancelB()

	e.emit(Event{Type: EventConnected})
	if ev := <-a; ev.Type != EventConnected {
		t.Fatalf("subscriber a got %s", ev.Type)
	}
	if ev := <-b; ev.Type != EventConnected {
		t.Fatalf("subscriber b got %s", ev.Type)
	}

	// A cancelled subscriber stops receiving; others are unaffected.
	cancelA()
	e.emit(Event{Type: EventDisconnected})
	if ev := <-b; ev.Type != EventDisconnected {
		t.Fatalf("subscriber b got %s", ev.Type)
	}
	if _, ok := <-a; ok {
		t.Fatal("cancelled subscriber channel not closed")
	}
}

func TestEmitterDropsWhenSubscriberIsFull(t *testing.T) {
	e := newEmitter()
	ch, cancel := e.subscribe()
	defer cancel()

	// Overfill the buffer; emit must not block.
	for i := 0; i < cap(ch)+10; i++ {
		e.emit(Event{Type: EventError})
	}

	n := 0
	for len(ch) > 0 {
		<-ch
		n++
	}
	if n != cap(ch) {
		t.Fatalf("drained %d events, want %d", n, cap(ch))
	}
}

func TestEmitterClose(t *testing.T) {
	e := newEmitter()
	ch, _ := e.subscribe()

	e.close()
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel not closed")
	}

	// Subscribing after close yields an already-closed channel.
	late, cancel := e.subscribe()
	defer cancel()
	if _, ok := <-late; ok {
		t.Fatal("late subscriber channel not closed")
	}
	// Emitting after close must not panic.
	e.emit(Event{Type: EventError})
}
