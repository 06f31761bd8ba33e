package domain

// Button is an inline button with an action token
type Button struct {
	Label  string
	Action string
}

// Message is an outgoing chat message with an inline keyboard
type Message struct {
	ChatID  int64
	Text    string
	Buttons [][]Button
}
