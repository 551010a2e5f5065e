// Package repository implements the data access layer over database/sql.
// This file defines sentinel errors shared across repositories so that
// handlers can map failures onto HTTP status codes: ErrNotFound becomes
// 404, ErrForbidden 403 and ErrConflict 409. Uniqueness violations on
// usernames and emails get their own sentinels because registration wants
// to tell the two apart.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they neither own nor are privileged to moderate.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that an operation cannot proceed because of existing
// state, such as deciding a tool that already left the pending status.
var ErrConflict = errors.New("conflict")

// ErrUsernameExists and ErrEmailExists map the MySQL duplicate-key error
// on the respective unique indexes.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

// isDuplicate reports whether err is a MySQL duplicate-entry error (1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
