package stanza

import (
	"encoding/xml"
	"fmt"
)

type IQType string

const (
	IQGet    IQType = "get"
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

// IQ is an <iq/> stanza. Payload is the raw inner XML.
type IQ struct {
	ID      string
	From    string
	To      string
	Type    IQType
	Payload string
}

type wireIQ struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	Type    string   `xml:"type,attr"`
	Payload string   `xml:",innerxml"`
}

// XML renders the IQ for the wire.
func (iq IQ) XML() (string, error) {
	out, err := xml.Marshal(wireIQ{
		ID:      iq.ID,
		From:    iq.From,
		To:      iq.To,
		Type:    string(iq.Type),
		Payload: iq.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal iq %s: %w", iq.ID, err)
	}
	return string(out), nil
}

// Err returns the stanza error carried by an error-typed IQ, or nil.
func (iq IQ) Err() error {
	if iq.Type != IQError {
		return nil
	}
	if e := ParseError(iq.Payload); e != nil {
		return e
	}
	return &Error{Condition: CondUndefined}
}

// Result builds the result reply to iq carrying payload.
func (iq IQ) Result(payload string) IQ {
	return IQ{ID: iq.ID, From: iq.To, To: iq.From, Type: IQResult, Payload: payload}
}

// ErrorReply builds the error reply to iq with a defined condition.
func (iq IQ) ErrorReply(errType, cond string) IQ {
	return IQ{
		ID:      iq.ID,
		From:    iq.To,
		To:      iq.From,
		Type:    IQError,
		Payload: fmt.Sprintf(`<error type=%q><%s xmlns=%q/></error>`, errType, cond, NSStanzas),
	}
}
