package call

import "testing"

func TestRegistryDisjointness(t *testing.T) {
	r := newRegistry()
	c := &Call{ID: "call_a_1_x"}

	if !r.put(bucketOutgoing, c) {
		t.Fatal("first put failed")
	}
	// The same id cannot enter a second collection.
	if r.put(bucketIncoming, c) {
		t.Fatal("put accepted a duplicate id into another collection")
	}
	if r.put(bucketOutgoing, c) {
		t.Fatal("put accepted a duplicate id into the same collection")
	}

	got, b := r.find("call_a_1_x")
	if got != c || b != bucketOutgoing {
		t.Fatalf("find = (%v, %s)", got, b)
	}
}

func TestRegistryGetChecksCollection(t *testing.T) {
	r := newRegistry()
	r.put(bucketIncoming, &Call{ID: "call_a_1_x"})

	if _, ok := r.get(bucketOutgoing, "call_a_1_x"); ok {
		t.Fatal("get returned a call from the wrong collection")
	}
	if _, ok := r.get(bucketIncoming, "call_a_1_x"); !ok {
		t.Fatal("get missed the call in its collection")
	}
}

func TestRegistryMove(t *testing.T) {
	r := newRegistry()
	r.put(bucketIncoming, &Call{ID: "call_a_1_x"})

	if !r.move("call_a_1_x", bucketIncoming, bucketActive) {
		t.Fatal("move failed")
	}
	if _, ok := r.get(bucketIncoming, "call_a_1_x"); ok {
		t.Fatal("call still in the source collection after move")
	}
	if _, ok := r.get(bucketActive, "call_a_1_x"); !ok {
		t.Fatal("call missing from the target collection after move")
	}
	// Moving a call that already left its collection fails cleanly.
	if r.move("call_a_1_x", bucketIncoming, bucketActive) {
		t.Fatal("second move succeeded")
	}
}

func TestRegistryTake(t *testing.T) {
	r := newRegistry()
	r.put(bucketActive, &Call{ID: "call_a_1_x"})

	if _, ok := r.take("call_a_1_x"); !ok {
		t.Fatal("take missed the call")
	}
	if _, ok := r.take("call_a_1_x"); ok {
		t.Fatal("second take found the removed call")
	}
	if _, b := r.find("call_a_1_x"); b != bucketNone {
		t.Fatalf("removed call still findable in %s", b)
	}
}

func TestRegistryAll(t *testing.T) {
	r := newRegistry()
	r.put(bucketIncoming, &Call{ID: "call_a_1_x"})
	r.put(bucketOutgoing, &Call{ID: "call_b_2_y"})
	r.put(bucketActive, &Call{ID: "call_c_3_z"})

	if got := r.all(); len(got) != 3 {
		t.Fatalf("all returned %d calls, want 3", len(got))
	}
}
