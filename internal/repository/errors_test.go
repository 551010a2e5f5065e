package repository

import (
	"errors"
	"testing"
)

func TestIsDuplicate(t *testing.T) {
	if !isDuplicate(errors.New("Error 1062 (23000): Duplicate entry 'alice' for key 'users.username'")) {
		t.Error("mysql duplicate-entry error not detected")
	}
	if isDuplicate(errors.New("Error 1054: Unknown column")) {
		t.Error("unrelated mysql error treated as duplicate")
	}
	if isDuplicate(nil) {
		t.Error("nil is not a duplicate error")
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 50},
		{-5, 50},
		{10, 10},
		{200, 200},
		{500, 200},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.in); got != tc.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
