package sms

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known inbound SMS webhook fields. None of them are required; the event
// carries whatever the provider sent.
const (
	FieldAPIKey           = "api-key"
	FieldMSISDN           = "msisdn"
	FieldTo               = "to"
	FieldMessageID        = "messageId"
	FieldText             = "text"
	FieldType             = "type"
	FieldKeyword          = "keyword"
	FieldMessageTimestamp = "message-timestamp"
	FieldTimestamp        = "timestamp"
	FieldNonce            = "nonce"
	FieldConcat           = "concat"
	FieldConcatRef        = "concat-ref"
	FieldConcatTotal      = "concat-total"
	FieldConcatPart       = "concat-part"
	FieldData             = "data"
	FieldUDH              = "udh"
)

// Message types reported in the "type" field.
const (
	TypeText    = "text"
	TypeUnicode = "unicode"
	TypeBinary  = "binary"
)

// messageTimestampLayout is the provider's format for message-timestamp (UTC).
const messageTimestampLayout = "2006-01-02 15:04:05"

// MessageEvent is one inbound SMS webhook event: a flat set of string fields.
// The zero value is an event with no fields.
type MessageEvent struct {
	fields map[string]string
}

// NewMessageEvent copies fields into a new event.
func NewMessageEvent(fields map[string]string) MessageEvent {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return MessageEvent{fields: cp}
}

// Get returns the value of key and whether it was present.
func (e MessageEvent) Get(key string) (string, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Value returns the value of key, or "" when absent.
func (e MessageEvent) Value(key string) string {
	return e.fields[key]
}

// Len returns the number of fields.
func (e MessageEvent) Len() int {
	return len(e.fields)
}

// Keys returns the field names in sorted order.
func (e MessageEvent) Keys() []string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns a copy of all fields.
func (e MessageEvent) Fields() map[string]string {
	cp := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		cp[k] = v
	}
	return cp
}

// Equal reports whether both events carry the same fields and values.
func (e MessageEvent) Equal(other MessageEvent) bool {
	if len(e.fields) != len(other.fields) {
		return false
	}
	for k, v := range e.fields {
		if ov, ok := other.fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (e MessageEvent) MSISDN() string    { return e.fields[FieldMSISDN] }
func (e MessageEvent) To() string        { return e.fields[FieldTo] }
func (e MessageEvent) MessageID() string { return e.fields[FieldMessageID] }
func (e MessageEvent) Text() string      { return e.fields[FieldText] }
func (e MessageEvent) Type() string      { return e.fields[FieldType] }
func (e MessageEvent) Keyword() string   { return e.fields[FieldKeyword] }
func (e MessageEvent) Data() string      { return e.fields[FieldData] }
func (e MessageEvent) UDH() string       { return e.fields[FieldUDH] }

// IsBinary reports whether the message was delivered as binary data.
func (e MessageEvent) IsBinary() bool {
	return strings.EqualFold(e.Type(), TypeBinary)
}

// IsUnicode reports whether the message text was sent with a unicode encoding.
func (e MessageEvent) IsUnicode() bool {
	return strings.EqualFold(e.Type(), TypeUnicode)
}

// MessageTimestamp returns when the provider received the message. It accepts
// the provider layout ("2006-01-02 15:04:05", UTC) and RFC 3339. The second
// return is false when the field is absent or unparseable.
func (e MessageEvent) MessageTimestamp() (time.Time, bool) {
	s := strings.TrimSpace(e.fields[FieldMessageTimestamp])
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(messageTimestampLayout, s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ConcatInfo describes one part of a multi-part (concatenated) message.
type ConcatInfo struct {
	Ref   string
	Total int
	Part  int
}

// Concat returns the concatenation details when the event is one part of a
// longer message. It returns false for single-part messages or when the part
// numbers are missing or malformed.
func (e MessageEvent) Concat() (ConcatInfo, bool) {
	if !strings.EqualFold(e.fields[FieldConcat], "true") {
		return ConcatInfo{}, false
	}
	total, err := strconv.Atoi(e.fields[FieldConcatTotal])
	if err != nil || total < 1 {
		return ConcatInfo{}, false
	}
	part, err := strconv.Atoi(e.fields[FieldConcatPart])
	if err != nil || part < 1 || part > total {
		return ConcatInfo{}, false
	}
	return ConcatInfo{Ref: e.fields[FieldConcatRef], Total: total, Part: part}, true
}
