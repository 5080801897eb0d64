package queue

import "encoding/json"

// MessageVersion is the current prewarm message schema version.
const MessageVersion = 1

// Message asks a worker to generate formats for one asset.
type Message struct {
	AssetID    string   `json:"assetId"`
	Formats    []string `json:"formats"`
	RequestID  string   `json:"requestId,omitempty"`
	EnqueuedAt string   `json:"enqueuedAt"`
	Version    int      `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
