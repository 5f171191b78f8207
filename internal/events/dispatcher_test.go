package events

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewDispatcher(8, zap.NewNop())

	var mu sync.Mutex
	var got []Event
	d.Subscribe(RunCompleted, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	d.Publish(Event{Type: RunCompleted, RunID: "r1", Success: true})
	d.Publish(Event{Type: RunStarted, RunID: "r2"})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(got))
	}
	if got[0].RunID != "r1" || !got[0].Success {
		t.Fatalf("unexpected event: %+v", got[0])
	}
	if got[0].At.IsZero() {
		t.Fatalf("publish must stamp the event time")
	}
}

func TestDispatcherSurvivesHandlerPanic(t *testing.T) {
	d := NewDispatcher(8, zap.NewNop())

	var mu sync.Mutex
	delivered := 0
	d.Subscribe(PhaseCompleted, func(Event) { panic("boom") })
	d.Subscribe(PhaseCompleted, func(Event) {
		mu.Lock()
		defer mu.Unlock()
		delivered++
	})

	d.Publish(Event{Type: PhaseCompleted})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Fatalf("second handler must still run after a panic, delivered=%d", delivered)
	}
}

func TestDispatcherPublishAfterCloseIsNoop(t *testing.T) {
	d := NewDispatcher(8, zap.NewNop())
	d.Close()
	// Must not panic on a closed queue.
	d.Publish(Event{Type: RunStarted})
}

func TestDispatcherConcurrentPublishAndClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := NewDispatcher(1, zap.NewNop())

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					d.Publish(Event{Type: RunStarted})
				}
			}()
		}
		d.Close()
		wg.Wait()
	}
}
