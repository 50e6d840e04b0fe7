package utils

import (
	"encoding/hex"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	tests := []struct {
		name     string
		validate func(t *testing.T, got string)
	}{
		{
			name: "generates a 128 bit hex ID",
			validate: func(t *testing.T, got string) {
				if len(got) != 32 {
					t.Errorf("NewID() = %q, want 32 characters", got)
				}
				if _, err := hex.DecodeString(got); err != nil {
					t.Errorf("NewID() = %q is not hex: %v", got, err)
				}
			},
		},
		{
			name: "generates unique IDs",
			validate: func(t *testing.T, got string) {
				id2, err := NewID()
				if err != nil {
					t.Fatalf("NewID() error = %v", err)
				}
				if got == id2 {
					t.Error("NewID() generated duplicate IDs")
				}
			},
		},
		{
			name: "later IDs sort first",
			validate: func(t *testing.T, got string) {
				time.Sleep(2 * time.Millisecond)
				later, err := NewID()
				if err != nil {
					t.Fatalf("NewID() error = %v", err)
				}
				if later >= got {
					t.Errorf("NewID() = %q, want it to sort before %q", later, got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewID()
			if err != nil {
				t.Fatalf("NewID() error = %v", err)
			}
			tt.validate(t, got)
		})
	}
}
