package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dup entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"wrapped dup entry", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), true},
		{"other mysql error", &mysql.MySQLError{Number: 1452}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKey(tt.err); got != tt.want {
				t.Fatalf("isDuplicateKey(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	marks, args := placeholders([]uint64{4, 5, 6})
	if marks != "?,?,?" {
		t.Fatalf("marks = %q", marks)
	}
	if len(args) != 3 || args[0] != uint64(4) || args[2] != uint64(6) {
		t.Fatalf("args = %v", args)
	}
	marks, args = placeholders(nil)
	if marks != "" || len(args) != 0 {
		t.Fatalf("empty placeholders = %q %v", marks, args)
	}
}

func TestPrefixed(t *testing.T) {
	got := prefixed("s", "id, name,display_order")
	want := "s.id, s.name, s.display_order"
	if got != want {
		t.Fatalf("prefixed = %q, want %q", got, want)
	}
}
