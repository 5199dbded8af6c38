package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sms"
)

type fakeAdder struct {
	calls []*redis.XAddArgs
	err   error
}

func (f *fakeAdder) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.calls = append(f.calls, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestHandleAppendsEnvelope(t *testing.T) {
	fake := &fakeAdder{}
	s := New(fake, "sms:inbound", 0)

	env := bus.NewEnvelope(bus.SourceSMSWebhook, sms.FromValues(map[string]string{
		"msisdn": "447700900000",
		"text":   "Hello",
	}))
	if err := s.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("expected one XAdd, got %d", len(fake.calls))
	}
	args := fake.calls[0]
	if args.Stream != "sms:inbound" {
		t.Errorf("stream = %q", args.Stream)
	}
	if args.MaxLen != 0 || args.Approx {
		t.Errorf("unexpected trimming: maxlen=%d approx=%v", args.MaxLen, args.Approx)
	}

	values, ok := args.Values.(map[string]interface{})
	if !ok {
		t.Fatalf("values has type %T", args.Values)
	}
	if values["id"] != env.ID || values["source"] != bus.SourceSMSWebhook {
		t.Errorf("values = %v", values)
	}

	var decoded bus.Envelope
	if err := json.Unmarshal([]byte(values["envelope"].(string)), &decoded); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if decoded.ID != env.ID || !decoded.Event.Equal(env.Event) {
		t.Errorf("decoded envelope = %+v", decoded)
	}
}

func TestHandleTrimsWhenMaxLenSet(t *testing.T) {
	fake := &fakeAdder{}
	s := New(fake, "sms:inbound", 500)

	if err := s.Handle(context.Background(), bus.NewEnvelope(bus.SourceSMSWebhook, sms.MessageEvent{})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	args := fake.calls[0]
	if args.MaxLen != 500 || !args.Approx {
		t.Fatalf("maxlen=%d approx=%v, want 500 approx", args.MaxLen, args.Approx)
	}
}

func TestHandleError(t *testing.T) {
	boom := errors.New("connection refused")
	s := New(&fakeAdder{err: boom}, "sms:inbound", 0)

	err := s.Handle(context.Background(), bus.NewEnvelope(bus.SourceSMSWebhook, sms.MessageEvent{}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDialBadURL(t *testing.T) {
	if _, _, err := Dial(context.Background(), "not-a-redis-url", "s", 0); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}
