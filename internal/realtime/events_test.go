package realtime

import (
	"encoding/json"
	"testing"
)

func TestIDCoercion(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "number", in: `77`, want: 77},
		{name: "quoted", in: `"77"`, want: 77},
		{name: "float", in: `77.0`, want: 77},
		{name: "null", in: `null`, want: 0},
		{name: "garbage", in: `"abc"`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tc.in), &id)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %q: %v", tc.in, err)
			}
			if int64(id) != tc.want {
				t.Fatalf("got %d, want %d", id, tc.want)
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := Encode(EventSendMessage, &SendMessagePayload{
		ConversationID: 9,
		SenderID:       1,
		Text:           "hi",
		TempID:         "temp-1",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != EventSendMessage {
		t.Fatalf("got type %q, want %q", env.Type, EventSendMessage)
	}

	var p SendMessagePayload
	if err := env.Decode(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ConversationID != 9 || p.SenderID != 1 || p.Text != "hi" || p.TempID != "temp-1" {
		t.Fatalf("payload did not survive the round trip: %+v", p)
	}
}

func TestEnvelopeDecodeEmptyPayload(t *testing.T) {
	env := Envelope{Type: EventRegister}
	var p RegisterPayload
	if err := env.Decode(&p); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestStringIDsInsideMessageSeenPayload(t *testing.T) {
	raw := []byte(`{"conversationId":"9","messageIds":["55",56],"userId":2}`)
	var p MessageSeenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ConversationID != 9 || len(p.MessageIDs) != 2 || p.MessageIDs[0] != 55 || p.MessageIDs[1] != 56 {
		t.Fatalf("coercion failed: %+v", p)
	}
}
