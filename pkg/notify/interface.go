package notify

import "context"

// Sender delivers booking lifecycle notifications. Delivery is fire and
// forget: a send failure is logged by the caller and never rolls back the
// transition that triggered it.
type Sender interface {
	Send(ctx context.Context, message *Message) error
}

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

type Message struct {
	To      string  `json:"to"`
	Channel Channel `json:"channel"`
	Body    string  `json:"body"`
}

// NopSender discards all messages, used when no sender is configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, message *Message) error {
	return nil
}
