package chat

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type RecipientKind string

const RecipientUser RecipientKind = "user"

type Recipient struct {
	Kind RecipientKind `json:"kind"`
	Name string        `json:"name"`
}

// Payload is the record pushed to a peer's mailbox, one per destination.
type Payload struct {
	From  string    `json:"from"`
	To    Recipient `json:"to"`
	Text  *string   `json:"text,omitempty"`
	Media []byte    `json:"media,omitempty"`
}

// NewPayload attributes body to from and addresses it to a single peer.
func NewPayload(from, to, body string) Payload {
	text := fmt.Sprintf("from %s: %s\n", from, body)
	return Payload{
		From: from,
		To:   Recipient{Kind: RecipientUser, Name: to},
		Text: &text,
	}
}

// EncodePayload renders p as a single newline-terminated JSON record.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return append(data, '\n'), nil
}

func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(bytes.TrimRight(data, "\r\n"), &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
