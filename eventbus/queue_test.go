package eventbus

import (
	"testing"
	"time"

	"github.com/noctis-project/noctis/crypto"
)

func TestQueuePushFrontPop(t *testing.T) {
	q := NewQueue(0)
	q.Push(NewBlock(1, crypto.Hash{}))

	ev, err := q.Front()
	if err != nil {
		t.Fatalf("front: %v", err)
	}
	if ev.Kind != KindNewBlock || ev.Height != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := q.Pop(); err != nil {
		t.Fatalf("pop: %v", err)
	}
}

func TestQueueFrontBlocksUntilPush(t *testing.T) {
	q := NewQueue(0)
	done := make(chan Event, 1)
	go func() {
		ev, err := q.Front()
		if err != nil {
			t.Error(err)
			return
		}
		done <- ev
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(NewAlternativeBlock(5, crypto.Hash{}))

	select {
	case ev := <-done:
		if ev.Kind != KindNewAlternativeBlock {
			t.Fatalf("unexpected kind: %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Front never unblocked after Push")
	}
}

func TestQueueStopWakesWaiters(t *testing.T) {
	q := NewQueue(0)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Front()
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Stop()

	select {
	case err := <-errc:
		if err != ErrStopped {
			t.Fatalf("err = %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop never woke the blocked Front call")
	}
}

func TestQueueCapacityDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push(NewBlock(1, crypto.Hash{}))
	q.Push(NewBlock(2, crypto.Hash{}))
	q.Push(NewBlock(3, crypto.Hash{}))

	ev, err := q.Front()
	if err != nil {
		t.Fatalf("front: %v", err)
	}
	if ev.Height != 2 {
		t.Fatalf("oldest surviving height = %d, want 2", ev.Height)
	}
}

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(0)
	b := bus.Subscribe(0)

	bus.Publish(NewBlock(7, crypto.Hash{}))

	for _, q := range []*Queue{a, b} {
		ev, err := q.Front()
		if err != nil {
			t.Fatalf("front: %v", err)
		}
		if ev.Height != 7 {
			t.Fatalf("height = %d, want 7", ev.Height)
		}
	}
}
