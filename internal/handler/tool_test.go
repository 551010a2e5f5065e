package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/cache"
	"github.com/dmarves/toolshare/internal/config"
	"github.com/dmarves/toolshare/internal/model"
	"github.com/dmarves/toolshare/internal/service"
)

type toolFixture struct {
	e       *echo.Echo
	h       *ToolHandler
	tools   *fakeToolStore
	ratings *fakeRatingStore
	mem     *cache.MemoryStore
	audit   *fakeAuditStore
}

func newToolFixture() *toolFixture {
	tools := newFakeToolStore()
	ratings := newFakeRatingStore()
	tools.ratings = ratings
	mem := cache.NewMemoryStore()
	audit := &fakeAuditStore{}
	cfg := config.CacheConfig{Enabled: true, Prefix: "tools", StatsTTL: 5 * time.Minute}
	return &toolFixture{
		e:       echo.New(),
		h:       NewToolHandler(tools, ratings, mem, service.NewAuditRecorder(audit), cfg),
		tools:   tools,
		ratings: ratings,
		mem:     mem,
		audit:   audit,
	}
}

func (f *toolFixture) seedTool(creator uint64, name string) model.Tool {
	t := model.Tool{
		Name:        name,
		Description: "a seeded tool used in tests",
		Category:    model.CategoryDevelopment,
		CreatedBy:   creator,
	}
	_ = f.tools.Create(context.Background(), &t)
	return t
}

func TestCreateToolStartsPending(t *testing.T) {
	f := newToolFixture()
	body := `{"name":"Widget","description":"does widget things nicely","category":"productivity"}`
	rec := doJSON(f.e, f.h.Create, http.MethodPost, "/v1/tools", body, 7, model.RoleUser)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got model.Tool
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("new tool must be pending, got %q", got.Status)
	}
	if got.CreatedBy != 7 {
		t.Errorf("creator = %d", got.CreatedBy)
	}
	if actions := f.audit.actions(); len(actions) != 1 || actions[0] != "create" {
		t.Errorf("audit trail = %v", actions)
	}
}

func TestCreateToolValidation(t *testing.T) {
	f := newToolFixture()
	cases := []struct {
		name string
		body string
	}{
		{"short description", `{"name":"X","description":"short","category":"other"}`},
		{"empty name", `{"name":"  ","description":"long enough description","category":"other"}`},
		{"bad category", `{"name":"X","description":"long enough description","category":"games"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(f.e, f.h.Create, http.MethodPost, "/v1/tools", tc.body, 7, model.RoleUser)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status %d", rec.Code)
			}
		})
	}
	if len(f.tools.tools) != 0 {
		t.Errorf("rejected submissions must not persist, have %d", len(f.tools.tools))
	}
}

func TestUpdateToolOwnership(t *testing.T) {
	f := newToolFixture()
	seeded := f.seedTool(7, "Widget")
	body := `{"name":"Renamed"}`

	// a stranger with the user role is rejected and nothing changes
	rec := doJSON(f.e, f.h.Update, http.MethodPut, "/", body, 8, model.RoleUser, "id", "1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger: status %d", rec.Code)
	}
	if got, _ := f.tools.GetByID(context.Background(), seeded.ID); got.Name != "Widget" {
		t.Fatalf("tool mutated by forbidden update: %q", got.Name)
	}

	// moderators do not own other users' tools either
	rec = doJSON(f.e, f.h.Update, http.MethodPut, "/", body, 9, model.RoleModerator, "id", "1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("moderator: status %d", rec.Code)
	}

	// the creator may update
	rec = doJSON(f.e, f.h.Update, http.MethodPut, "/", body, 7, model.RoleUser, "id", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("creator: status %d: %s", rec.Code, rec.Body.String())
	}

	// and so may an admin
	rec = doJSON(f.e, f.h.Update, http.MethodPut, "/", `{"name":"Admin rename"}`, 1, model.RoleAdmin, "id", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status %d", rec.Code)
	}
	if got, _ := f.tools.GetByID(context.Background(), seeded.ID); got.Name != "Admin rename" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestDeleteTool(t *testing.T) {
	f := newToolFixture()
	f.seedTool(7, "Widget")
	ctx := context.Background()

	// dependents that must go with the tool
	_ = f.ratings.Upsert(ctx, 1, 10, 4)
	comment := model.ToolComment{ToolID: 1, UserID: 10, Content: "handy"}
	_ = f.ratings.AddComment(ctx, &comment)
	if _, err := f.ratings.Vote(ctx, comment.ID, 11, model.VoteUp); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(f.e, f.h.Delete, http.MethodDelete, "/", "", 8, model.RoleUser, "id", "1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger delete: status %d", rec.Code)
	}

	rec = doJSON(f.e, f.h.Delete, http.MethodDelete, "/", "", 7, model.RoleUser, "id", "1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: status %d", rec.Code)
	}
	if len(f.tools.tools) != 0 {
		t.Error("tool not removed")
	}

	// ratings, comments and votes vanished with it
	if _, count, _ := f.ratings.Summary(ctx, 1); count != 0 {
		t.Errorf("ratings survived delete, count=%d", count)
	}
	if n, _ := f.ratings.CountComments(ctx, 1); n != 0 {
		t.Errorf("comments survived delete, count=%d", n)
	}
	if _, err := f.ratings.GetComment(ctx, comment.ID); err == nil {
		t.Error("comment row survived delete")
	}
	if len(f.ratings.votes) != 0 {
		t.Errorf("votes survived delete, have %d", len(f.ratings.votes))
	}

	rec = doJSON(f.e, f.h.Delete, http.MethodDelete, "/", "", 7, model.RoleUser, "id", "1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status %d", rec.Code)
	}
}

func TestDecideTool(t *testing.T) {
	f := newToolFixture()
	f.seedTool(7, "Widget")

	rec := doJSON(f.e, f.h.Decide, http.MethodPost, "/", `{"approved":true}`, 2, model.RoleModerator, "id", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := f.tools.GetByID(context.Background(), 1)
	if got.Status != model.StatusApproved || got.ApprovedBy == nil || *got.ApprovedBy != 2 {
		t.Fatalf("after approve: %+v", got)
	}

	// the decision is final; a second moderator gets a conflict
	rec = doJSON(f.e, f.h.Decide, http.MethodPost, "/", `{"approved":false,"reason":"dup"}`, 3, model.RoleModerator, "id", "1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-decide: status %d", rec.Code)
	}
	if got, _ := f.tools.GetByID(context.Background(), 1); got.Status != model.StatusApproved {
		t.Fatalf("conflicting decision applied: %q", got.Status)
	}
}

func TestRejectReasonOptional(t *testing.T) {
	f := newToolFixture()
	f.seedTool(7, "Widget")
	f.seedTool(7, "Gadget")

	// a reasonless rejection is a valid decision
	rec := doJSON(f.e, f.h.Decide, http.MethodPost, "/", `{"approved":false}`, 2, model.RoleModerator, "id", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("reasonless reject: status %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := f.tools.GetByID(context.Background(), 1)
	if got.Status != model.StatusRejected {
		t.Fatalf("status = %q", got.Status)
	}
	if got.RejectionReason != nil {
		t.Fatalf("reason should stay unset, got %q", *got.RejectionReason)
	}

	// a provided reason is kept
	rec = doJSON(f.e, f.h.Decide, http.MethodPost, "/", `{"approved":false,"reason":"spam"}`, 2, model.RoleModerator, "id", "2")
	if rec.Code != http.StatusOK {
		t.Fatalf("reject with reason: status %d", rec.Code)
	}
	got, _ = f.tools.GetByID(context.Background(), 2)
	if got.RejectionReason == nil || *got.RejectionReason != "spam" {
		t.Fatalf("reason = %v", got.RejectionReason)
	}
}

func TestStatsCachedAndInvalidated(t *testing.T) {
	f := newToolFixture()
	f.seedTool(7, "Widget")

	rec := doJSON(f.e, f.h.Stats, http.MethodGet, "/v1/tools/stats", "", 0, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var first model.ToolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.Total != 1 || first.ByStatus["pending"] != 1 {
		t.Fatalf("stats = %+v", first)
	}
	if f.mem.Len() != 1 {
		t.Fatalf("stats not memoized, cache len=%d", f.mem.Len())
	}

	// any catalog mutation drops the whole namespace
	body := `{"name":"Another","description":"another tool for the catalog","category":"design"}`
	if rec := doJSON(f.e, f.h.Create, http.MethodPost, "/v1/tools", body, 7, model.RoleUser); rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	if f.mem.Len() != 0 {
		t.Fatalf("cache not invalidated, len=%d", f.mem.Len())
	}

	// recompute reflects the new tool
	rec = doJSON(f.e, f.h.Stats, http.MethodGet, "/v1/tools/stats", "", 0, "")
	var second model.ToolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.Total != 2 || second.ByCategory["design"] != 1 {
		t.Fatalf("stats after create = %+v", second)
	}
}

func TestToolDetailAggregates(t *testing.T) {
	f := newToolFixture()
	f.tools.names[7] = "alice"
	f.tools.names[2] = "mod"
	f.seedTool(7, "Widget")
	ctx := context.Background()
	if _, err := f.tools.Decide(ctx, 1, 2, true, ""); err != nil {
		t.Fatal(err)
	}
	for uid, r := range map[uint64]int{10: 3, 11: 4, 12: 5} {
		_ = f.ratings.Upsert(ctx, 1, uid, r)
	}
	_ = f.ratings.AddComment(ctx, &model.ToolComment{ToolID: 1, UserID: 10, Content: "nice"})

	rec := doJSON(f.e, f.h.Get, http.MethodGet, "/", "", 10, model.RoleUser, "id", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		CreatedByUsername  string   `json:"created_by_username"`
		ApprovedByUsername string   `json:"approved_by_username"`
		AverageRating      *float64 `json:"average_rating"`
		TotalRatings       int64    `json:"total_ratings"`
		UserRating         *int     `json:"user_rating"`
		TotalComments      int64    `json:"total_comments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.CreatedByUsername != "alice" || got.ApprovedByUsername != "mod" {
		t.Errorf("usernames: %+v", got)
	}
	if got.AverageRating == nil || *got.AverageRating != 4.0 {
		t.Errorf("average = %v", got.AverageRating)
	}
	if got.TotalRatings != 3 || got.TotalComments != 1 {
		t.Errorf("counts: %+v", got)
	}
	if got.UserRating == nil || *got.UserRating != 3 {
		t.Errorf("user rating = %v", got.UserRating)
	}

	// anonymous callers see no personal rating
	rec = doJSON(f.e, f.h.Get, http.MethodGet, "/", "", 0, "", "id", "1")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.UserRating != nil {
		t.Errorf("anonymous user rating = %v", got.UserRating)
	}
}

func TestListFilters(t *testing.T) {
	f := newToolFixture()
	f.seedTool(7, "Alpha")
	f.seedTool(7, "Beta Analyzer")
	ctx := context.Background()
	if _, err := f.tools.Decide(ctx, 2, 2, true, ""); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(f.e, f.h.List, http.MethodGet, "/v1/tools?status=approved", "", 0, "")
	var got toolListResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 1 || got.Tools[0].Name != "Beta Analyzer" {
		t.Fatalf("filtered list: %+v", got)
	}

	rec = doJSON(f.e, f.h.List, http.MethodGet, "/v1/tools?status=archived", "", 0, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status filter: %d", rec.Code)
	}

	rec = doJSON(f.e, f.h.Search, http.MethodGet, "/v1/tools/search?q=analyzer", "", 0, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 1 {
		t.Fatalf("search: %+v", got)
	}

	rec = doJSON(f.e, f.h.Search, http.MethodGet, "/v1/tools/search", "", 0, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing q: %d", rec.Code)
	}
}

// Full lifecycle walked through the handlers: submit, moderate, rate,
// inspect, delete. Asserts the audit trail captured every step in order.
func TestToolLifecycleScenario(t *testing.T) {
	f := newToolFixture()
	f.tools.names[7] = "alice"
	f.tools.names[2] = "mod"

	body := `{"name":"Widget","description":"turns widgets into gadgets","category":"development"}`
	rec := doJSON(f.e, f.h.Create, http.MethodPost, "/v1/tools", body, 7, model.RoleUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	// invisible to an approved-only listing until moderated
	rec = doJSON(f.e, f.h.List, http.MethodGet, "/v1/tools?status=approved", "", 0, "")
	var listed toolListResp
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if listed.Total != 0 {
		t.Fatalf("pending tool leaked into approved list: %+v", listed)
	}

	if rec := doJSON(f.e, f.h.Decide, http.MethodPost, "/", `{"approved":true}`, 2, model.RoleModerator, "id", "1"); rec.Code != http.StatusOK {
		t.Fatalf("approve: %d", rec.Code)
	}
	if rec := doJSON(f.e, f.h.Rate, http.MethodPost, "/", `{"rating":5}`, 10, model.RoleUser, "id", "1"); rec.Code != http.StatusOK {
		t.Fatalf("rate: %d", rec.Code)
	}

	rec = doJSON(f.e, f.h.Get, http.MethodGet, "/", "", 0, "", "id", "1")
	var detail toolDetailResp
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Status != model.StatusApproved || detail.AverageRating == nil || *detail.AverageRating != 5 {
		t.Fatalf("detail: %+v", detail)
	}

	if rec := doJSON(f.e, f.h.Delete, http.MethodDelete, "/", "", 7, model.RoleUser, "id", "1"); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}

	want := []string{"create", "approve", "rate", "delete"}
	got := f.audit.actions()
	if len(got) != len(want) {
		t.Fatalf("audit trail = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit trail = %v, want %v", got, want)
		}
	}
}
