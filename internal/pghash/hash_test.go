package pghash

import "testing"

func TestDoubleSHA256Deterministic(t *testing.T) {
	a := DoubleSHA256([]byte("hello"))
	b := DoubleSHA256([]byte("hello"))
	if a != b {
		t.Error("expected DoubleSHA256 to be deterministic")
	}
	if a == DoubleSHA256([]byte("world")) {
		t.Error("expected different inputs to hash differently")
	}
}

func TestHash160Length(t *testing.T) {
	h := Hash160([]byte("some pubkey bytes"))
	if len(h) != 20 {
		t.Errorf("Hash160 length = %d, want 20", len(h))
	}
}

func TestSipHashUint256Deterministic(t *testing.T) {
	h := DoubleSHA256([]byte("seed"))
	a := SipHashUint256(1, 2, h)
	b := SipHashUint256(1, 2, h)
	if a != b {
		t.Error("expected SipHashUint256 to be deterministic for a fixed key and message")
	}
	if a == SipHashUint256(3, 4, h) {
		t.Error("expected a different key to change the output")
	}
}
