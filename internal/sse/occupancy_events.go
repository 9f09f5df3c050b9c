package sse

import (
	"context"
	"sync"

	"ms-booking/internal/models"
)

// OccupancyEmitter manages SSE connections and broadcasts seat count
// changes to clients watching an occurrence's availability live.
type OccupancyEmitter struct {
	clients     map[string][]chan models.OccupancyEvent
	clientMutex sync.RWMutex
}

func NewOccupancyEmitter() *OccupancyEmitter {
	return &OccupancyEmitter{
		clients: make(map[string][]chan models.OccupancyEvent),
	}
}

// Subscribe adds a client to the occurrence's occupancy events. The
// channel closes when the context is cancelled.
func (e *OccupancyEmitter) Subscribe(ctx context.Context, occurrenceID string) chan models.OccupancyEvent {
	clientChan := make(chan models.OccupancyEvent, 10)

	e.clientMutex.Lock()
	e.clients[occurrenceID] = append(e.clients[occurrenceID], clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(occurrenceID, clientChan)
	}()

	return clientChan
}

// Broadcast delivers an occupancy event to every subscriber of its
// occurrence. Slow clients are skipped rather than blocked on.
func (e *OccupancyEmitter) Broadcast(event models.OccupancyEvent) {
	e.clientMutex.RLock()
	subscribers := e.clients[event.OccurrenceID]
	e.clientMutex.RUnlock()

	for _, clientChan := range subscribers {
		select {
		case clientChan <- event:
		default:
		}
	}
}

// SubscriberCount reports how many clients watch an occurrence.
func (e *OccupancyEmitter) SubscriberCount(occurrenceID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[occurrenceID])
}

func (e *OccupancyEmitter) removeClient(occurrenceID string, clientChan chan models.OccupancyEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	subscribers := e.clients[occurrenceID]
	for i, ch := range subscribers {
		if ch == clientChan {
			e.clients[occurrenceID] = append(subscribers[:i], subscribers[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[occurrenceID]) == 0 {
		delete(e.clients, occurrenceID)
	}
}
