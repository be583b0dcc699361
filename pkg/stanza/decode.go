package stanza

import (
	"encoding/xml"
	"fmt"
)

type inboundMessage struct {
	XMLName  xml.Name
	ID       string    `xml:"id,attr"`
	From     string    `xml:"from,attr"`
	To       string    `xml:"to,attr"`
	Type     string    `xml:"type,attr"`
	Body     string    `xml:"body"`
	Elements []Element `xml:",any"`
}

// ParseMessage decodes a <message/> read from the stream. Children in the
// stanza's own namespace (subject, thread, error) are not extensions and are
// dropped. A message without a type attribute is "normal".
func ParseMessage(raw []byte) (Message, error) {
	var in inboundMessage
	if err := xml.Unmarshal(raw, &in); err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	msg := Message{
		ID:   in.ID,
		From: in.From,
		To:   in.To,
		Type: MessageType(in.Type),
		Body: in.Body,
	}
	if msg.Type == "" {
		msg.Type = TypeNormal
	}
	for _, el := range in.Elements {
		if el.XMLName.Space == "" || el.XMLName.Space == in.XMLName.Space {
			continue
		}
		msg.Elements = append(msg.Elements, el)
	}
	return msg, nil
}

// ParseIQ decodes an <iq/> read from the stream. The payload keeps the raw
// child elements.
func ParseIQ(raw []byte) (IQ, error) {
	var in wireIQ
	if err := xml.Unmarshal(raw, &in); err != nil {
		return IQ{}, fmt.Errorf("parse iq: %w", err)
	}
	return IQ{
		ID:      in.ID,
		From:    in.From,
		To:      in.To,
		Type:    IQType(in.Type),
		Payload: in.Payload,
	}, nil
}
