package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", errors.New("connection reset"), false},
		{"dimension", CheckDimension(3, 4), true},
		{"wrapped credential", fmt.Errorf("cohere: %w", ErrMissingCredential), true},
		{"collection missing", ErrCollectionNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCheckDimension(t *testing.T) {
	if err := CheckDimension(1024, 1024); err != nil {
		t.Fatalf("CheckDimension equal = %v", err)
	}
	err := CheckDimension(768, 1024)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
