package chat

import "time"

// RoomID uniquely identifies a room for the lifetime of the process.
type RoomID string

func (id RoomID) String() string { return string(id) }

// Room is a named broadcast scope. Its identity fields never change after
// creation; the registry owns its lifetime.
type Room struct {
	id        RoomID
	name      string
	timeLimit uint32
	createdAt time.Time
	topic     *Topic[Message]
}

// ID returns the room's identifier.
func (r *Room) ID() RoomID { return r.id }

// Name returns the room's display label. Names are not unique.
func (r *Room) Name() string { return r.name }

// TimeLimit returns the advertised session length in minutes. It is
// informational and does not affect relaying.
func (r *Room) TimeLimit() uint32 { return r.timeLimit }

// CreatedAt returns when the room was registered.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Topic returns the room's broadcast topic.
func (r *Room) Topic() *Topic[Message] { return r.topic }

// Summary returns the room's public description.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.id, Name: r.name, TimeLimit: r.timeLimit}
}

// RoomSummary is the externally visible description of a room.
type RoomSummary struct {
	ID        RoomID `json:"room_id"`
	Name      string `json:"room_name"`
	TimeLimit uint32 `json:"room_time"`
}
