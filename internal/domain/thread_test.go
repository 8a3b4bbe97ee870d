package domain

import (
	"errors"
	"testing"
)

func TestNewThread(t *testing.T) {
	tests := []struct {
		name     string
		conv     string
		group    string
		wantKind ThreadKind
		wantErr  bool
	}{
		{"direct", "a-b", "", ThreadDirect, false},
		{"group", "", "g1", ThreadGroup, false},
		{"both", "a-b", "g1", 0, true},
		{"neither", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, err := NewThread(tt.conv, tt.group)
			if tt.wantErr {
				if !errors.Is(err, ErrThreadTarget) {
					t.Fatalf("err = %v; want ErrThreadTarget", err)
				}
				if !th.IsZero() {
					t.Fatalf("expected zero thread on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if th.Kind() != tt.wantKind {
				t.Fatalf("kind = %v; want %v", th.Kind(), tt.wantKind)
			}
		})
	}
}

func TestMessageSetThreadClearsOtherColumn(t *testing.T) {
	var m Message
	m.SetThread(GroupThread("g1"))
	m.SetThread(DirectThread("a-b"))
	if m.GroupID != nil {
		t.Fatalf("GroupID should be cleared")
	}
	if got := m.Thread(); got.Kind() != ThreadDirect || got.ID() != "a-b" {
		t.Fatalf("Thread() = %+v", got)
	}
	if got := m.Thread().Key(); got != "direct:a-b" {
		t.Fatalf("Key() = %q", got)
	}
}
