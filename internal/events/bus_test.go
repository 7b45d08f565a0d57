package events

import "testing"

func TestBusDeliversToSubscribers(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe(1)
	ch2, cancel2 := b.Subscribe(1)
	defer cancel2()

	b.Publish(Change{Kind: KindTask, ProjectID: "p1", TaskID: "t1"})
	for _, ch := range []<-chan Change{ch1, ch2} {
		got := <-ch
		if got.TaskID != "t1" {
			t.Fatalf("unexpected change: %+v", got)
		}
	}

	cancel1()
	cancel1()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	b.Publish(Change{Kind: KindTask})
	if got := <-ch2; got.Kind != KindTask {
		t.Fatalf("unexpected change: %+v", got)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()
	b.Publish(Change{Kind: KindTask, TaskID: "first"})
	b.Publish(Change{Kind: KindTask, TaskID: "second"})
	if got := <-ch; got.TaskID != "first" {
		t.Fatalf("unexpected change: %+v", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("expected no more changes, got %+v", got)
	default:
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Change{Kind: KindProject})
}
