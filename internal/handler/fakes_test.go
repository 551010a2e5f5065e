package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/queue"
	"github.com/dmarves/toolshare/internal/repository"
	"github.com/dmarves/toolshare/internal/utils"
)

// In-memory store fakes. They implement the repository interfaces with
// plain maps so handler behavior is tested without a database.

type fakeToolStore struct {
	nextID  uint64
	tools   map[uint64]model.Tool
	names   map[uint64]string // user id -> username
	ratings *fakeRatingStore  // cascade target for Delete, set by the fixture
}

func newFakeToolStore() *fakeToolStore {
	return &fakeToolStore{tools: map[uint64]model.Tool{}, names: map[uint64]string{}}
}

func (s *fakeToolStore) Create(_ context.Context, t *model.Tool) error {
	s.nextID++
	t.ID = s.nextID
	t.Status = model.StatusPending
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	s.tools[t.ID] = *t
	return nil
}

func (s *fakeToolStore) GetByID(_ context.Context, id uint64) (model.Tool, error) {
	t, ok := s.tools[id]
	if !ok {
		return model.Tool{}, repository.ErrNotFound
	}
	return t, nil
}

func (s *fakeToolStore) List(_ context.Context, f repository.ToolFilter) ([]model.Tool, int64, error) {
	var out []model.Tool
	for _, t := range s.tools {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(t.Name), q) &&
				!strings.Contains(strings.ToLower(t.Description), q) {
				continue
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (s *fakeToolStore) ListByCreator(_ context.Context, userID uint64) ([]model.Tool, error) {
	var out []model.Tool
	for _, t := range s.tools {
		if t.CreatedBy == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeToolStore) Update(_ context.Context, id uint64, upd repository.ToolUpdate) (model.Tool, error) {
	t, ok := s.tools[id]
	if !ok {
		return model.Tool{}, repository.ErrNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.URL != nil {
		t.URL = upd.URL
	}
	t.UpdatedAt = time.Now().UTC()
	s.tools[id] = t
	return t, nil
}

func (s *fakeToolStore) Delete(_ context.Context, id uint64) error {
	if _, ok := s.tools[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tools, id)
	if s.ratings != nil {
		for k := range s.ratings.ratings {
			if k.tool == id {
				delete(s.ratings.ratings, k)
			}
		}
		for cid, c := range s.ratings.comments {
			if c.ToolID != id {
				continue
			}
			for k := range s.ratings.votes {
				if k.tool == cid { // vote keys are (comment, user)
					delete(s.ratings.votes, k)
				}
			}
			delete(s.ratings.comments, cid)
		}
	}
	return nil
}

func (s *fakeToolStore) Decide(_ context.Context, id, deciderID uint64, approved bool, reason string) (model.Tool, error) {
	t, ok := s.tools[id]
	if !ok {
		return model.Tool{}, repository.ErrNotFound
	}
	if t.Status != model.StatusPending {
		return model.Tool{}, repository.ErrConflict
	}
	if approved {
		t.Status = model.StatusApproved
		t.ApprovedBy = &deciderID
		t.RejectionReason = nil
	} else {
		t.Status = model.StatusRejected
		if reason != "" {
			t.RejectionReason = &reason
		}
	}
	s.tools[id] = t
	return t, nil
}

func (s *fakeToolStore) Stats(_ context.Context) (model.ToolStats, error) {
	stats := model.ToolStats{ByStatus: map[string]int64{}, ByCategory: map[string]int64{}}
	for _, c := range model.Categories() {
		stats.ByCategory[c.String()] = 0
	}
	for _, st := range []model.ToolStatus{model.StatusPending, model.StatusApproved, model.StatusRejected} {
		stats.ByStatus[st.String()] = 0
	}
	for _, t := range s.tools {
		stats.Total++
		stats.ByStatus[t.Status.String()]++
		stats.ByCategory[t.Category.String()]++
	}
	return stats, nil
}

func (s *fakeToolStore) Usernames(_ context.Context, ids []uint64) (map[uint64]string, error) {
	out := map[uint64]string{}
	for _, id := range ids {
		if name, ok := s.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type ratingKey struct{ tool, user uint64 }

type fakeRatingStore struct {
	ratings       map[ratingKey]int
	comments      map[uint64]model.ToolComment
	votes         map[ratingKey]int // comment id, user id -> vote
	nextCommentID uint64
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{
		ratings:  map[ratingKey]int{},
		comments: map[uint64]model.ToolComment{},
		votes:    map[ratingKey]int{},
	}
}

func (s *fakeRatingStore) Upsert(_ context.Context, toolID, userID uint64, rating int) error {
	s.ratings[ratingKey{toolID, userID}] = rating
	return nil
}

func (s *fakeRatingStore) Get(_ context.Context, toolID, userID uint64) (model.ToolRating, error) {
	r, ok := s.ratings[ratingKey{toolID, userID}]
	if !ok {
		return model.ToolRating{}, repository.ErrNotFound
	}
	return model.ToolRating{ToolID: toolID, UserID: userID, Rating: r}, nil
}

func (s *fakeRatingStore) Summary(_ context.Context, toolID uint64) (float64, int64, error) {
	var sum, count int64
	for k, r := range s.ratings {
		if k.tool == toolID {
			sum += int64(r)
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (s *fakeRatingStore) AddComment(_ context.Context, c *model.ToolComment) error {
	s.nextCommentID++
	c.ID = s.nextCommentID
	c.CreatedAt = time.Now().UTC()
	s.comments[c.ID] = *c
	return nil
}

func (s *fakeRatingStore) ListComments(_ context.Context, toolID uint64, offset, limit int) ([]model.ToolComment, int64, error) {
	var out []model.ToolComment
	for _, c := range s.comments {
		if c.ToolID == toolID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (s *fakeRatingStore) GetComment(_ context.Context, id uint64) (model.ToolComment, error) {
	c, ok := s.comments[id]
	if !ok {
		return model.ToolComment{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *fakeRatingStore) DeleteComment(_ context.Context, id uint64) error {
	if _, ok := s.comments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

func (s *fakeRatingStore) CountComments(_ context.Context, toolID uint64) (int64, error) {
	var n int64
	for _, c := range s.comments {
		if c.ToolID == toolID {
			n++
		}
	}
	return n, nil
}

func (s *fakeRatingStore) Vote(_ context.Context, commentID, userID uint64, vote int) (model.ToolComment, error) {
	c, ok := s.comments[commentID]
	if !ok {
		return model.ToolComment{}, repository.ErrNotFound
	}
	key := ratingKey{commentID, userID}
	prev := s.votes[key]
	if prev == vote {
		return c, nil
	}
	switch prev {
	case model.VoteUp:
		c.Upvotes--
	case model.VoteDown:
		c.Downvotes--
	}
	switch vote {
	case model.VoteUp:
		c.Upvotes++
	case model.VoteDown:
		c.Downvotes++
	}
	s.votes[key] = vote
	s.comments[commentID] = c
	return c, nil
}

type fakeUserStore struct {
	nextID uint64
	users  map[uint64]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uint64]model.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, username, email, password string, cost int) (uint64, error) {
	for _, u := range s.users {
		if u.Username == username {
			return 0, repository.ErrUsernameExists
		}
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.nextID++
	s.users[s.nextID] = model.User{
		ID: s.nextID, Username: username, Email: email,
		PasswordHash: hash, Role: model.RoleUser, IsActive: true,
	}
	return s.nextID, nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (model.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) List(_ context.Context, offset, limit int) ([]model.User, error) {
	var out []model.User
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeUserStore) UpdateRole(_ context.Context, id uint64, role model.Role) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) SetTwoFactor(_ context.Context, id uint64, enabled bool, notifyAddress string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TwoFactor = enabled
	u.NotifyAddress = notifyAddress
	s.users[id] = u
	return nil
}

type fakeTokenStore struct {
	tokens map[string]uint64 // hash -> user id
}

func newFakeTokenStore() *fakeTokenStore { return &fakeTokenStore{tokens: map[string]uint64{}} }

func (s *fakeTokenStore) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
	s.tokens[hash] = userID
	return nil
}

func (s *fakeTokenStore) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	uid, ok := s.tokens[hash]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return uid, nil
}

func (s *fakeTokenStore) RevokeByHash(_ context.Context, hash string) error {
	delete(s.tokens, hash)
	return nil
}

func (s *fakeTokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	for h, uid := range s.tokens {
		if uid == userID {
			delete(s.tokens, h)
		}
	}
	return nil
}

type fakeCodeStore struct {
	codes map[uint64]string // user id -> code hash
}

func newFakeCodeStore() *fakeCodeStore { return &fakeCodeStore{codes: map[uint64]string{}} }

func (s *fakeCodeStore) StoreCode(_ context.Context, userID uint64, hash string, _ time.Time) error {
	s.codes[userID] = hash
	return nil
}

func (s *fakeCodeStore) ConsumeCode(_ context.Context, userID uint64, hash string) error {
	if s.codes[userID] != hash {
		return repository.ErrNotFound
	}
	delete(s.codes, userID) // single use
	return nil
}

type fakeAuditStore struct {
	records []model.AuditLog
}

func (s *fakeAuditStore) Insert(_ context.Context, rec model.AuditLog) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeAuditStore) ListByUser(_ context.Context, userID uint64, _ int) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, r := range s.records {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) ListByEntity(_ context.Context, entityType string, entityID uint64, _ int) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, r := range s.records {
		if r.EntityType == entityType && r.EntityID != nil && *r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) actions() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Action
	}
	return out
}

type fakePublisher struct {
	events []queue.TwoFactorCodeEvent
	fail   bool
}

func (p *fakePublisher) PublishCode(_ context.Context, event queue.TwoFactorCodeEvent) error {
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.events = append(p.events, event)
	return nil
}

// doJSON performs one request against an echo instance with the given
// identity injected, mimicking what JWTAuth does after verification.
func doJSON(e *echo.Echo, h echo.HandlerFunc, method, target, body string,
	uid uint64, role model.Role, params ...string) *httptest.ResponseRecorder {

	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != 0 {
		c.Set("user_id", uid)
		c.Set("role", role.String())
	}
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	_ = h(c)
	return rec
}
