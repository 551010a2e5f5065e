package model

import (
	"fmt"
	"strings"
	"time"
)

// ToolCategory is the fixed set of catalog categories.
type ToolCategory string

const (
	CategoryDevelopment   ToolCategory = "development"
	CategoryDesign        ToolCategory = "design"
	CategoryProductivity  ToolCategory = "productivity"
	CategoryCommunication ToolCategory = "communication"
	CategoryAnalytics     ToolCategory = "analytics"
	CategoryOther         ToolCategory = "other"
)

// Categories lists every defined category in a stable order, used when
// computing per-category stats.
func Categories() []ToolCategory {
	return []ToolCategory{
		CategoryDevelopment,
		CategoryDesign,
		CategoryProductivity,
		CategoryCommunication,
		CategoryAnalytics,
		CategoryOther,
	}
}

func (c ToolCategory) Valid() bool {
	switch c {
	case CategoryDevelopment, CategoryDesign, CategoryProductivity,
		CategoryCommunication, CategoryAnalytics, CategoryOther:
		return true
	}
	return false
}

func (c ToolCategory) String() string { return string(c) }

// ParseCategory normalizes and validates a category string.
func ParseCategory(s string) (ToolCategory, error) {
	c := ToolCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// ToolStatus is the moderation lifecycle state of a tool. Pending is the
// only initial state; approved and rejected are terminal.
type ToolStatus string

const (
	StatusPending  ToolStatus = "pending"
	StatusApproved ToolStatus = "approved"
	StatusRejected ToolStatus = "rejected"
)

func (s ToolStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status can no longer change.
func (s ToolStatus) Terminal() bool { return s == StatusApproved || s == StatusRejected }

func (s ToolStatus) String() string { return string(s) }

// ParseStatus normalizes and validates a status string.
func ParseStatus(raw string) (ToolStatus, error) {
	s := ToolStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Tool mirrors the 'tools' table. ApprovedBy and RejectionReason are
// mutually exclusive: approval clears the reason, rejection sets it.
type Tool struct {
	ID              uint64       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Category        ToolCategory `json:"category"`
	Status          ToolStatus   `json:"status"`
	URL             *string      `json:"url"`
	CreatedBy       uint64       `json:"created_by"`
	ApprovedBy      *uint64      `json:"approved_by"`
	RejectionReason *string      `json:"rejection_reason"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ToolStats is the cached aggregate view over the catalog.
type ToolStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByCategory map[string]int64 `json:"by_category"`
}
