package peernetic

import "testing"

func TestSubcoroutineRouter_ForwardRoutesByFirstElement(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	self := MustAddress("node1", "router")
	r := NewSubcoroutineRouter(self, host)

	var gotA, gotB []any
	add := func(key string, dst *[]any) Subcoroutine {
		return func(ctx *Context) error {
			for {
				msg := ctx.Message()
				*dst = append(*dst, msg.Payload())
				ctx.Suspend()
			}
		}
	}
	if err := r.Add("a", add("a", &gotA), AddOnly); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("b", add("b", &gotB), AddOnly); err != nil {
		t.Fatal(err)
	}

	mustSend := func(key string, payload any) Message {
		dest, err := self.AppendElements(key)
		if err != nil {
			t.Fatal(err)
		}
		msg, err := NewMessage(MustAddress("sender"), dest, payload)
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}

	if _, err := r.Forward(mustSend("a", 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Forward(mustSend("b", "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Forward(mustSend("a", 2)); err != nil {
		t.Fatal(err)
	}

	if len(gotA) != 2 || gotA[0] != 1 || gotA[1] != 2 {
		t.Errorf("gotA = %v, want [1 2]", gotA)
	}
	if len(gotB) != 1 || gotB[0] != "x" {
		t.Errorf("gotB = %v, want [x]", gotB)
	}
}

func TestSubcoroutineRouter_OneSubcoroutineFinishingDoesNotAffectOthers(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	self := MustAddress("node1", "router")
	r := NewSubcoroutineRouter(self, host)

	finishNow := func(ctx *Context) error {
		return nil // finishes on its very first step
	}
	var surviving []any
	keepsGoing := func(ctx *Context) error {
		for {
			surviving = append(surviving, ctx.Message().Payload())
			ctx.Suspend()
		}
	}

	if err := r.Add("gone", finishNow, AddOnly); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("stays", keepsGoing, AddOnly); err != nil {
		t.Fatal(err)
	}
	if r.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", r.Size())
	}

	send := func(key string, payload any) Message {
		dest, _ := self.AppendElements(key)
		msg, _ := NewMessage(MustAddress("sender"), dest, payload)
		return msg
	}

	if _, err := r.Forward(send("gone", "bye")); err != nil {
		t.Fatal(err)
	}
	if r.Size() != 1 {
		t.Errorf("Size() after finished subcoroutine = %d, want 1", r.Size())
	}

	if _, err := r.Forward(send("stays", "hi")); err != nil {
		t.Fatal(err)
	}
	if len(surviving) != 1 || surviving[0] != "hi" {
		t.Errorf("surviving = %v, want [hi]", surviving)
	}

	// A second Forward to the already-finished key routes nowhere.
	routed, err := r.Forward(send("gone", "again"))
	if err != nil {
		t.Fatal(err)
	}
	if routed {
		t.Error("Forward to a removed subcoroutine should report routed == false")
	}
}

func TestSubcoroutineRouter_AddAndForceForwardNoFinishCheck(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	self := MustAddress("node1", "router")
	r := NewSubcoroutineRouter(self, host)

	finishNow := func(ctx *Context) error { return nil }
	if err := r.Add("x", finishNow, AddAndForceForwardNoFinishCheck); err != nil {
		t.Fatal(err)
	}
	if r.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after a forced-forward subcoroutine finished immediately", r.Size())
	}
}

func TestSubcoroutineRouter_AddAndForceForwardRejectsImmediateFinish(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	self := MustAddress("node1", "router")
	r := NewSubcoroutineRouter(self, host)

	finishNow := func(ctx *Context) error { return nil }
	if err := r.Add("x", finishNow, AddAndForceForward); err == nil {
		t.Error("AddAndForceForward should error when the subcoroutine finishes on its first step")
	}
}

func TestSubcoroutineRouter_DuplicateAddRejected(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	self := MustAddress("node1", "router")
	r := NewSubcoroutineRouter(self, host)

	fn := func(ctx *Context) error {
		ctx.Suspend()
		return nil
	}
	if err := r.Add("x", fn, AddOnly); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("x", fn, AddOnly); err != ErrSubcoroutineExists {
		t.Errorf("second Add error = %v, want ErrSubcoroutineExists", err)
	}
}

func TestSubcoroutineRouter_RemoveUnknownKey(t *testing.T) {
	host := NewHost(MustAddress("node1"))
	r := NewSubcoroutineRouter(MustAddress("node1", "router"), host)
	if err := r.Remove("nope"); err != ErrSubcoroutineNotFound {
		t.Errorf("Remove error = %v, want ErrSubcoroutineNotFound", err)
	}
}
