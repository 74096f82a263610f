package rosparser

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTyped(t *testing.T) {
	cases := []struct {
		msgType string
		raw     string
		want    interface{}
	}{
		{"std_msgs/String", `{"data":"arrived at bed-1"}`, "arrived at bed-1"},
		{"std_msgs/msg/String", `{"data":"ok"}`, "ok"},
		{"std_msgs/Float32", `{"data":36.6}`, 36.6},
		{"std_msgs/Float64", `{"data":-1}`, -1.0},
		{"std_msgs/Int32", `{"data":42}`, int64(42)},
		{"std_msgs/Bool", `{"data":true}`, true},
	}
	for _, c := range cases {
		got, err := Decode(c.msgType, json.RawMessage(c.raw))
		if err != nil {
			t.Errorf("Decode(%s, %s) failed: %v", c.msgType, c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("Decode(%s, %s) = %v (%T), want %v (%T)", c.msgType, c.raw, got, got, c.want, c.want)
		}
	}
}

func TestDecodeGenericFallback(t *testing.T) {
	got, err := Decode("geometry_msgs/Point", json.RawMessage(`{"x":1,"y":2,"z":0}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok || m["y"] != 2.0 {
		t.Errorf("Expected generic map, got %v", got)
	}
	if IsSupported("geometry_msgs/Point") {
		t.Error("geometry_msgs/Point should not have a typed decoder")
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		msgType string
		raw     string
	}{
		{"std_msgs/String", `{"data":12}`},
		{"std_msgs/Float32", `{"value":1}`},
		{"std_msgs/Bool", `not json`},
		{"std_msgs/String", ``},
	}
	for _, c := range cases {
		_, err := Decode(c.msgType, json.RawMessage(c.raw))
		var perr *Error
		if !errors.As(err, &perr) {
			t.Errorf("Decode(%s, %q): expected *Error, got %v", c.msgType, c.raw, err)
		}
	}
}
