package peernetic

import (
	"testing"
	"time"
)

func TestBus_WriteThenReadAll(t *testing.T) {
	b := NewBus()
	msg, _ := NewMessage(MustAddress("a"), MustAddress("b"), "hello")
	b.Write(NewDeliverRecord(msg))

	records, ok := b.ReadAll()
	if !ok {
		t.Fatal("expected ok == true")
	}
	if len(records) != 1 || !records[0].IsMessage() {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Message().Payload() != "hello" {
		t.Errorf("payload = %v, want %q", records[0].Message().Payload(), "hello")
	}
}

func TestBus_ReadAllBlocksUntilWrite(t *testing.T) {
	b := NewBus()
	done := make(chan []BusRecord, 1)
	go func() {
		records, _ := b.ReadAll()
		done <- records
	}()

	select {
	case <-done:
		t.Fatal("ReadAll returned before any Write")
	case <-time.After(20 * time.Millisecond):
	}

	msg, _ := NewMessage(Address{}, MustAddress("b"), 1)
	b.Write(NewDeliverRecord(msg))

	select {
	case records := <-done:
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
	case <-time.After(time.Second):
		t.Fatal("ReadAll never woke up after Write")
	}
}

func TestBus_CloseWakesBlockedReader(t *testing.T) {
	b := NewBus()
	done := make(chan bool, 1)
	go func() {
		_, ok := b.ReadAll()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("ReadAll on a closed, empty bus should report ok == false")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadAll never woke up after Close")
	}
}

func TestBus_WriteAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	b.Close()
	msg, _ := NewMessage(Address{}, MustAddress("b"), 1)
	b.Write(NewDeliverRecord(msg)) // must not panic or block

	records, ok := b.TryReadAll()
	if ok || records != nil {
		t.Errorf("expected (nil, false) from a closed bus, got (%v, %v)", records, ok)
	}
}

func TestBus_TryReadAllNonBlocking(t *testing.T) {
	b := NewBus()
	records, ok := b.TryReadAll()
	if !ok || records != nil {
		t.Errorf("TryReadAll on empty open bus = (%v, %v), want (nil, true)", records, ok)
	}

	msg, _ := NewMessage(Address{}, MustAddress("b"), 1)
	b.Write(NewDeliverRecord(msg))
	records, ok = b.TryReadAll()
	if !ok || len(records) != 1 {
		t.Errorf("TryReadAll after Write = (%v, %v), want one record", records, ok)
	}
}

func TestBus_AddRemoveShuttleRecordKinds(t *testing.T) {
	prefix := MustAddress("net")
	sh := ShuttleFunc(func(messages []Message) {})

	add := NewAddOutgoingShuttleRecord(prefix, sh)
	if !add.IsAddShuttle() || add.IsMessage() || add.IsRemoveShuttle() {
		t.Error("add record has wrong kind flags")
	}
	if !add.Prefix().Equal(prefix) {
		t.Error("add record lost its prefix")
	}

	remove := NewRemoveOutgoingShuttleRecord(prefix)
	if !remove.IsRemoveShuttle() || remove.IsMessage() || remove.IsAddShuttle() {
		t.Error("remove record has wrong kind flags")
	}
}
