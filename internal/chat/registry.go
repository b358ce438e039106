package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/observability"
)

// DefaultCapacity is the number of messages a room's topic retains.
const DefaultCapacity = 128

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCapacity sets the topic capacity for rooms created by the registry.
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) { r.capacity = n }
}

// WithLogger sets the registry's logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink. A nil value disables metrics.
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithIDGenerator replaces the room id source. Intended for tests.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// WithClock replaces the creation-time source. Intended for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// Registry tracks all live rooms, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]*Room
	// detached holds topics of deleted rooms that may still have receivers,
	// so Close can reach them.
	detached map[*Topic[Message]]struct{}

	capacity int
	logger   *zap.Logger
	metrics  *observability.Metrics
	newID    func() string
	now      func() time.Time
}

// NewRegistry creates an empty registry.
//
// Postcondition: Returns a non-nil Registry with Len() == 0.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:    make(map[RoomID]*Room),
		detached: make(map[*Topic[Message]]struct{}),
		capacity: DefaultCapacity,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new room with a fresh id and an empty topic.
//
// Postcondition: The returned room is immediately visible to Get and List.
// Panics if the id generator yields an id that is already registered.
func (r *Registry) Create(name string, timeLimit uint32) *Room {
	room := &Room{
		id:        RoomID(r.newID()),
		name:      name,
		timeLimit: timeLimit,
		createdAt: r.now(),
		topic:     NewTopic[Message](r.capacity),
	}

	r.mu.Lock()
	if _, exists := r.rooms[room.id]; exists {
		r.mu.Unlock()
		panic(fmt.Sprintf("chat: duplicate room id %q", room.id))
	}
	r.rooms[room.id] = room
	r.mu.Unlock()

	r.metrics.RoomCreated()
	r.logger.Info("room created",
		zap.String("room_id", room.id.String()),
		zap.String("room_name", name),
		zap.Uint32("room_time", timeLimit),
	)
	return room
}

// Get returns the room registered under id.
//
// Postcondition: Returns ErrRoomNotFound if id is not registered.
func (r *Registry) Get(id RoomID) (*Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %q: %w", id, ErrRoomNotFound)
	}
	return room, nil
}

// List returns a snapshot of all rooms ordered by creation time, then id.
func (r *Registry) List() []RoomSummary {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].createdAt.Equal(rooms[j].createdAt) {
			return rooms[i].createdAt.Before(rooms[j].createdAt)
		}
		return rooms[i].id < rooms[j].id
	})
	out := make([]RoomSummary, len(rooms))
	for i, room := range rooms {
		out[i] = room.Summary()
	}
	return out
}

// Delete removes the room registered under id.
//
// The room's topic is left open: relays already attached keep exchanging
// messages until they disconnect, but no new participant can find the room.
// The topic is still closed by Close. Detached topics whose receivers have
// all gone are forgotten on later deletes.
//
// Postcondition: Returns ErrRoomNotFound if id is not registered.
func (r *Registry) Delete(id RoomID) error {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
		for t := range r.detached {
			if t.Receivers() == 0 {
				delete(r.detached, t)
			}
		}
		r.detached[room.topic] = struct{}{}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("room %q: %w", id, ErrRoomNotFound)
	}

	r.metrics.RoomDeleted()
	r.logger.Info("room deleted", zap.String("room_id", id.String()))
	return nil
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Close closes the topic of every registered room, and of every deleted
// room that may still have receivers, so attached relays wind down.
// Rooms stay registered. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	topics := make([]*Topic[Message], 0, len(r.rooms)+len(r.detached))
	for _, room := range r.rooms {
		topics = append(topics, room.topic)
	}
	for t := range r.detached {
		topics = append(topics, t)
	}
	clear(r.detached)
	r.mu.Unlock()

	for _, t := range topics {
		t.Close()
	}
	r.logger.Info("registry closed", zap.Int("topics", len(topics)))
}

// detachedCount reports how many deleted-room topics are still tracked.
func (r *Registry) detachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.detached)
}
