package domain

import "encoding/json"

// Envelope is the {code, message, data} wrapper every API response follows.
// Code 0 is success; any other code is a business failure even on HTTP 200.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// OK reports whether the envelope carries a successful business code.
func (e *Envelope) OK() bool {
	return e.Code == 0
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}
