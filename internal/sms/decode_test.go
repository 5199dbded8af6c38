package sms

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleValues() map[string]string {
	return map[string]string{
		"msisdn":    "447700900000",
		"to":        "447700900001",
		"messageId": "abc123",
		"text":      "Hello",
		"type":      "text",
	}
}

func TestFromValues_Sample(t *testing.T) {
	ev := FromValues(sampleValues())
	if ev.Len() != 5 {
		t.Fatalf("expected 5 fields, got %d", ev.Len())
	}
	if ev.MSISDN() != "447700900000" {
		t.Errorf("msisdn = %q", ev.MSISDN())
	}
	if ev.To() != "447700900001" {
		t.Errorf("to = %q", ev.To())
	}
	if ev.MessageID() != "abc123" {
		t.Errorf("messageId = %q", ev.MessageID())
	}
	if ev.Text() != "Hello" {
		t.Errorf("text = %q", ev.Text())
	}
	if ev.Type() != TypeText {
		t.Errorf("type = %q", ev.Type())
	}
}

func TestFromValues_Empty(t *testing.T) {
	ev := FromValues(map[string]string{})
	if ev.Len() != 0 {
		t.Fatalf("expected no fields, got %d", ev.Len())
	}
	ev = FromValues(nil)
	if ev.Len() != 0 {
		t.Fatalf("expected no fields for nil map, got %d", ev.Len())
	}
}

func TestFromValues_CopiesInput(t *testing.T) {
	in := sampleValues()
	ev := FromValues(in)
	in["text"] = "changed"
	if ev.Text() != "Hello" {
		t.Fatalf("event aliased caller map: text = %q", ev.Text())
	}
}

func TestFromJSON_Sample(t *testing.T) {
	body := `{"msisdn":"447700900000","to":"447700900001","messageId":"abc123","text":"Hello","type":"text"}`
	ev, err := FromJSON([]byte(body))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !ev.Equal(FromValues(sampleValues())) {
		t.Fatalf("JSON event %v differs from flat event", ev.Fields())
	}
}

func TestFromJSON_ScalarNormalisation(t *testing.T) {
	body := `{"concat":true,"concat-part":1,"concat-total":3,"price":1.50,"keyword":null,"flag":false}`
	ev, err := FromJSON([]byte(body))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	want := map[string]string{
		"concat":       "true",
		"concat-part":  "1",
		"concat-total": "3",
		"price":        "1.50",
		"keyword":      "",
		"flag":         "false",
	}
	if !ev.Equal(NewMessageEvent(want)) {
		t.Fatalf("got %v, want %v", ev.Fields(), want)
	}
}

func TestFromJSON_EmptyObject(t *testing.T) {
	ev, err := FromJSON([]byte(" {} \n"))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if ev.Len() != 0 {
		t.Fatalf("expected no fields, got %d", ev.Len())
	}
}

func TestFromJSON_Malformed(t *testing.T) {
	tests := []struct {
		name, body string
	}{
		{"empty", ""},
		{"bad syntax", "{bad json"},
		{"bare word", "not-json"},
		{"json string", `"not-json"`},
		{"null", "null"},
		{"number", "42"},
		{"array", `[{"msisdn":"1"}]`},
		{"nested object", `{"msisdn":{"cc":"44"}}`},
		{"nested array", `{"to":["1","2"]}`},
		{"trailing object", `{"a":"1"}{"b":"2"}`},
		{"trailing garbage", `{"a":"1"} x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON([]byte(tt.body))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("FromJSON(%q) error = %v, want ErrMalformedPayload", tt.body, err)
			}
		})
	}
}

func TestFlatAndJSONEquivalence(t *testing.T) {
	cases := []map[string]string{
		{},
		sampleValues(),
		{"text": "héllo wörld ✓", "type": "unicode"},
		{"text": "line1\nline2 \"quoted\" \\ slash", "keyword": ""},
		{"text": "bad\xffbyte", "weird\xfekey": "v"},
	}
	for _, values := range cases {
		flat := FromValues(values)

		data, err := json.Marshal(values)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		fromJSON, err := FromJSON(data)
		if err != nil {
			t.Fatalf("FromJSON(%s): %v", data, err)
		}
		if !flat.Equal(fromJSON) {
			t.Errorf("flat %q != json %q", flat.Fields(), fromJSON.Fields())
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	var zero MessageEvent
	data, err := json.Marshal(zero)
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("zero event marshalled to %s", data)
	}

	ev := FromValues(sampleValues())
	data, err = json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back MessageEvent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(ev) {
		t.Fatalf("got %v, want %v", back.Fields(), ev.Fields())
	}
}

func TestMessageTimestamp(t *testing.T) {
	ev := FromValues(map[string]string{FieldMessageTimestamp: "2020-01-01 12:00:00"})
	got, ok := ev.MessageTimestamp()
	if !ok {
		t.Fatal("expected timestamp to parse")
	}
	want := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	ev = FromValues(map[string]string{FieldMessageTimestamp: "2020-01-01T14:00:00+02:00"})
	got, ok = ev.MessageTimestamp()
	if !ok || !got.Equal(want) {
		t.Fatalf("RFC3339: got %s ok=%v, want %s", got, ok, want)
	}

	for _, v := range []string{"", "yesterday"} {
		ev = FromValues(map[string]string{FieldMessageTimestamp: v})
		if _, ok := ev.MessageTimestamp(); ok {
			t.Errorf("expected %q not to parse", v)
		}
	}
}

func TestConcat(t *testing.T) {
	ev := FromValues(map[string]string{
		FieldConcat:      "true",
		FieldConcatRef:   "08B5",
		FieldConcatTotal: "3",
		FieldConcatPart:  "2",
	})
	info, ok := ev.Concat()
	if !ok {
		t.Fatal("expected concat info")
	}
	if info != (ConcatInfo{Ref: "08B5", Total: 3, Part: 2}) {
		t.Fatalf("got %+v", info)
	}

	bad := []map[string]string{
		{},
		{FieldConcat: "false", FieldConcatTotal: "3", FieldConcatPart: "1"},
		{FieldConcat: "true", FieldConcatTotal: "x", FieldConcatPart: "1"},
		{FieldConcat: "true", FieldConcatTotal: "2", FieldConcatPart: "3"},
		{FieldConcat: "true", FieldConcatTotal: "2", FieldConcatPart: "0"},
	}
	for _, fields := range bad {
		if _, ok := FromValues(fields).Concat(); ok {
			t.Errorf("expected no concat info for %v", fields)
		}
	}
}

func TestTypeHelpers(t *testing.T) {
	if !FromValues(map[string]string{"type": "binary"}).IsBinary() {
		t.Error("expected binary")
	}
	if !FromValues(map[string]string{"type": "Unicode"}).IsUnicode() {
		t.Error("expected unicode")
	}
	if FromValues(nil).IsBinary() {
		t.Error("empty event reported binary")
	}
}

func TestKeysSorted(t *testing.T) {
	keys := FromValues(sampleValues()).Keys()
	want := []string{"messageId", "msisdn", "text", "to", "type"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}
