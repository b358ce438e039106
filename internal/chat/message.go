package chat

import "time"

// Message is the envelope relayed to every participant of a room.
type Message struct {
	// Sender is the display name of the participant who sent the text.
	Sender string `json:"user_name"`
	// Text is the message body as received from the sender.
	Text string `json:"text"`
	// Timestamp is the server time the message was accepted, in UTC.
	Timestamp time.Time `json:"time_stamp"`
}

// NewMessage builds a Message stamped with now in UTC.
func NewMessage(sender, text string, now time.Time) Message {
	return Message{Sender: sender, Text: text, Timestamp: now.UTC()}
}
