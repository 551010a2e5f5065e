package model

import "time"

// ToolRating is one row per (tool, user) pair; the rating column holds an
// integer in [1,5] enforced by a CHECK constraint and the pair is covered
// by a unique index so re-rating updates in place.
type ToolRating struct {
	ID        uint64    `json:"id"`
	ToolID    uint64    `json:"tool_id"`
	UserID    uint64    `json:"user_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolComment is a free-text comment with denormalized vote counters.
type ToolComment struct {
	ID        uint64    `json:"id"`
	ToolID    uint64    `json:"tool_id"`
	UserID    uint64    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	Upvotes   int64     `json:"upvotes"`
	Downvotes int64     `json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vote directions stored in comment_votes.vote.
const (
	VoteUp   = 1
	VoteDown = -1
)

// CommentVote is one row per (comment, user); a user may change direction
// but never cast two votes on the same comment.
type CommentVote struct {
	ID        uint64    `json:"id"`
	CommentID uint64    `json:"comment_id"`
	UserID    uint64    `json:"user_id"`
	Vote      int       `json:"vote"`
	CreatedAt time.Time `json:"created_at"`
}
