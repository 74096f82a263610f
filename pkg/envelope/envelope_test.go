package envelope

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Unix(1700000000, 123456789)
	buf := Encode(Envelope{
		Channel:     "/tp_result",
		MessageType: "std_msgs/Float32",
		Sequence:    7,
		Timestamp:   ts,
		Payload:     []byte(`{"data":36.6}`),
	})

	env, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Channel != "/tp_result" || env.MessageType != "std_msgs/Float32" {
		t.Errorf("Unexpected names %+v", env)
	}
	if env.Sequence != 7 || !env.Timestamp.Equal(ts) {
		t.Errorf("Unexpected sequence/timestamp %d %v", env.Sequence, env.Timestamp)
	}
	if env.ContentType != ContentTypeJSON || string(env.Payload) != `{"data":36.6}` {
		t.Errorf("Unexpected payload %s (%s)", env.Payload, env.ContentType)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, buf := range [][]byte{nil, {1, 2, 3}, {0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0, 0, 0}} {
		if _, err := Decode(buf); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%v): expected ErrMalformed, got %v", buf, err)
		}
	}
}
