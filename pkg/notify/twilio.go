package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers SMS and WhatsApp messages through Twilio.
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSender{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioSender) Send(ctx context.Context, message *Message) error {
	to := message.To
	from := t.fromNumber
	if message.Channel == ChannelWhatsApp {
		to = "whatsapp:" + to
		from = "whatsapp:" + from
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(message.Body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send %s message: %w", message.Channel, err)
	}

	return nil
}
