package queue

import (
	"context"
	"testing"
	"time"

	"qrattendance/internal/attendance"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: TypeMarked, Body: []byte(`{"remark":"a|b"}`)}
	got := deserialize(serialize(msg))
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Fatalf("got %+v", got)
	}
	if raw := deserialize("no-separator"); raw.Type != "" || string(raw.Body) != "no-separator" {
		t.Fatalf("untyped message = %+v", raw)
	}
}

func TestMarkedPublisherThroughInMemory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := NewInMemory(4)
	pub := MarkedPublisher{Queue: q}
	evt := attendance.MarkedEvent{RowID: "r1", StudentID: 1, ClassID: 10, Date: "2024-06-03", Status: attendance.StatusLate}
	if err := pub.PublishMarked(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		got, err := DecodeMarked(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.RowID != "r1" || got.Status != attendance.StatusLate || got.Date != "2024-06-03" {
			t.Fatalf("event = %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestDecodeMarkedRejectsOtherTypes(t *testing.T) {
	if _, err := DecodeMarked(Message{Type: "checkin", Body: []byte("{}")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, _ := NewInMemory(1).Consume(ctx)
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
