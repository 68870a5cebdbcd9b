package connector

import (
	"testing"
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
)

func TestOutputQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := NewOutputQueue()
	first := newOutboundContext("1", gwmessage.Envelope{Type: gwmessage.TypeLastValueRequest})
	second := newOutboundContext("2", gwmessage.Envelope{Type: gwmessage.TypeLastValueRequest})

	q.Enqueue(first)
	q.Enqueue(second)

	if got, ok := q.Dequeue(time.Second); !ok || got.ID != "1" {
		t.Fatalf("Dequeue() = %v, %v, want id 1", got, ok)
	}
	if got, ok := q.Dequeue(time.Second); !ok || got.ID != "2" {
		t.Fatalf("Dequeue() = %v, %v, want id 2", got, ok)
	}
}

func TestOutputQueue_DequeueTimeoutOnEmpty(t *testing.T) {
	q := NewOutputQueue()
	start := time.Now()
	_, ok := q.Dequeue(30 * time.Millisecond)
	if ok {
		t.Fatal("Dequeue() on empty queue returned true")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("Dequeue() returned early after %v", elapsed)
	}
}

func TestOutputQueue_DequeueWakesOnEnqueue(t *testing.T) {
	q := NewOutputQueue()
	ctx := newOutboundContext("1", gwmessage.Envelope{})

	done := make(chan *OutboundContext, 1)
	go func() {
		got, _ := q.Dequeue(time.Second)
		done <- got
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(ctx)

	select {
	case got := <-done:
		if got != ctx {
			t.Fatalf("Dequeue() = %v, want %v", got, ctx)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue() did not wake on Enqueue")
	}
}

func TestOutboundContext_WaitReturnsAnswer(t *testing.T) {
	ctx := newOutboundContext("1", gwmessage.Envelope{})
	reply := gwmessage.Envelope{ID: "1", Type: gwmessage.TypeLastValueResponse}

	go ctx.answer(reply)

	got, err := ctx.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got.ID != "1" {
		t.Fatalf("Wait() = %v, want id 1", got)
	}
}

func TestOutboundContext_FailWinsOverLateAnswer(t *testing.T) {
	ctx := newOutboundContext("1", gwmessage.Envelope{})
	ctx.fail(ErrTimeout)
	ctx.answer(gwmessage.Envelope{ID: "1"})

	_, err := ctx.Wait()
	if err != ErrTimeout {
		t.Fatalf("Wait() error = %v, want ErrTimeout", err)
	}
}

func TestOutputQueue_LenReflectsQueuedOnly(t *testing.T) {
	q := NewOutputQueue()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	q.Enqueue(newOutboundContext("1", gwmessage.Envelope{}))
	q.Enqueue(newOutboundContext("2", gwmessage.Envelope{}))
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Dequeue(time.Second)
	if q.Len() != 1 {
		t.Fatalf("Len() after Dequeue = %d, want 1", q.Len())
	}
}

func TestOutputQueue_DrainReturnsAllAndEmptiesQueue(t *testing.T) {
	q := NewOutputQueue()
	first := newOutboundContext("1", gwmessage.Envelope{})
	second := newOutboundContext("2", gwmessage.Envelope{})
	q.Enqueue(first)
	q.Enqueue(second)

	drained := q.Drain()
	if len(drained) != 2 || drained[0] != first || drained[1] != second {
		t.Fatalf("Drain() = %v, want [first, second]", drained)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", q.Len())
	}
	if _, ok := q.Dequeue(30 * time.Millisecond); ok {
		t.Fatal("Dequeue() after Drain should time out on an empty queue")
	}
}

func TestOutputQueue_DrainOnEmptyQueue(t *testing.T) {
	q := NewOutputQueue()
	if drained := q.Drain(); len(drained) != 0 {
		t.Fatalf("Drain() on empty queue = %v, want empty", drained)
	}
}
