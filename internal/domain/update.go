package domain

// Sender identifies the author of an inbound event.
type Sender struct {
	ID          int64
	DisplayName string
	Username    string
}

// User converts the sender into the persisted user shape (timestamps are
// filled by the repository).
func (s Sender) User() User {
	return User{ID: s.ID, DisplayName: s.DisplayName, Username: s.Username}
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	Data      string
	MessageID int
}

// Update is one inbound event, normalized from the platform payload.
//
// Exactly one of Command, Message or Callback is meaningful:
//   - Command is set (without the leading '/') for command messages, with Args
//     holding the remainder of the line.
//   - Message is set for every other message.
//   - Callback is set for button presses.
type Update struct {
	ID       int
	ChatID   int64
	Sender   Sender
	Command  string
	Args     string
	Message  *Incoming
	Callback *Callback
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}
