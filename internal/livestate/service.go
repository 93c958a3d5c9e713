package livestate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Update sources.
const (
	SourceHTTP     = "http"
	SourceWS       = "ws"
	SourceMQTT     = "mqtt"
	SourceForecast = "forecast"
)

// Service couples the Store with the Hub so that an applied update and its
// broadcast, or a snapshot and the registration it is the baseline for,
// happen as one step.
type Service struct {
	store   *Store
	hub     *Hub
	logger  *slog.Logger
	metrics *Metrics

	mu sync.Mutex
}

func NewService(store *Store, hub *Hub, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hub: hub, logger: logger, metrics: metrics}
}

// Snapshot returns the current state.
func (s *Service) Snapshot() DeviceState {
	return s.store.Get()
}

// Update applies partial and broadcasts the resulting state to every observer.
// It returns the accepted fields.
func (s *Service) Update(partial map[string]json.RawMessage, source string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := s.store.Apply(partial)
	msg, err := EncodeState(s.store.Get())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	n := s.hub.Broadcast(msg)

	s.metrics.update(source)
	s.logger.Debug("state updated", "source", source, "accepted", len(accepted), "observers", n)
	return accepted, nil
}

// Join registers obs with the current state as its baseline.
func (s *Service) Join(obs Observer) (string, <-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := EncodeState(s.store.Get())
	if err != nil {
		return "", nil, fmt.Errorf("encode state: %w", err)
	}
	id, ready := s.hub.Register(obs, msg)
	return id, ready, nil
}

// Leave unregisters an observer and returns once nothing is being sent to it.
// It is safe to call more than once.
func (s *Service) Leave(id string) {
	s.hub.Unregister(id)
}

// Done is closed once the observer is gone, including when the hub dropped it.
func (s *Service) Done(id string) <-chan struct{} {
	return s.hub.Done(id)
}

// Reply sends msg to a single observer.
func (s *Service) Reply(id string, msg []byte) error {
	return s.hub.SendTo(id, msg)
}

// Observers reports the number of registered observers.
func (s *Service) Observers() int {
	return s.hub.Len()
}

// Close drops every observer.
func (s *Service) Close() {
	s.hub.Close()
}
