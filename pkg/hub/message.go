// Package hub fans detection events out to websocket subscribers. A single
// goroutine owns the client set; publishers never block.
package hub

import "encoding/json"

// Message is one encoded payload queued for every client.
type Message struct {
	Topic string
	Data  []byte
}

// NewJSONMessage encodes v for topic.
func NewJSONMessage(topic string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Data: data}, nil
}
