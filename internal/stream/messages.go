package stream

import "encoding/json"

// Message type values on the streaming channel. The client sends subscribe
// and unsubscribe; everything else flows server to client.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeEvent        = "event"
	TypeError        = "error"
)

// Message is the JSON frame exchanged on the streaming channel. Type is the
// discriminator; Payload stays raw until the type is known.
type Message struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
