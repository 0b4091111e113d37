package wire

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := Encode(KeyGet, TypeSensors, `{"weline":null}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Key != KeyGet || msg.Type != TypeSensors || msg.Body != `{"weline":null}` {
		t.Fatalf("Decode returned %+v", msg)
	}
}

func TestDecodeKeepsSemicolonsInBody(t *testing.T) {
	msg, err := Decode([]byte(`POST;signals;{"a":"x;y"}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Body != `{"a":"x;y"}` {
		t.Fatalf("body = %q, want semicolons preserved", msg.Body)
	}
}

func TestDecodeTrimsKeyAndType(t *testing.T) {
	msg, err := Decode([]byte(" GET ; login ;{}"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if msg.Key != KeyGet || msg.Type != TypeLogin {
		t.Fatalf("Decode returned %+v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"", "GET", "GET;sensors"} {
		msg, err := Decode([]byte(raw))
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q) err = %v, want ErrMalformed", raw, err)
		}
		if msg.Key != "" || msg.Type != "" || msg.Body != "{}" {
			t.Fatalf("Decode(%q) = %+v, want empty triplet", raw, msg)
		}
	}
}

func TestDenyReply(t *testing.T) {
	if got := string(DenyReply()); got != "REP;deny;{}" {
		t.Fatalf("DenyReply = %q", got)
	}
}
