package tokenstore

import (
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	s := New()
	id := s.Put("payload-a", time.Hour)
	if id == "" {
		t.Fatal("Put returned empty id")
	}

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get: not found")
	}
	if got != "payload-a" {
		t.Errorf("payload = %q, want %q", got, "payload-a")
	}
}

func TestGetUnknown(t *testing.T) {
	s := New()
	if _, ok := s.Get("nope"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestExpiry(t *testing.T) {
	s := New()
	current := time.Now()
	s.now = func() time.Time { return current }

	id := s.Put("short-lived", time.Minute)
	if _, ok := s.Get(id); !ok {
		t.Fatal("entry should be live before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := s.Get(id); ok {
		t.Error("entry should have expired")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0 after expired entry removal", s.Count())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	s := New()
	current := time.Now()
	s.now = func() time.Time { return current }

	id := s.Put("forever", 0)
	current = current.Add(1000 * time.Hour)
	if _, ok := s.Get(id); !ok {
		t.Error("zero-ttl entry should not expire")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	id := s.Put("gone", time.Hour)
	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Error("deleted id should not resolve")
	}
}
