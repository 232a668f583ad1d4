package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/session"
)

func newTestSession(id, workspaceRaw string) *session.Session {
	now := time.Now().Unix()
	return &session.Session{
		ID:            id,
		WorkspaceRaw:  workspaceRaw,
		WorkspaceNorm: session.Normalize(workspaceRaw),
		Policy:        "buffer",
		State:         []byte(`{"lc":1,"type":"constructor"}`),
		MessageCount:  2,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func stringPtr(s string) *string {
	return &s
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01ABC123", "default")
	s.NameRaw = stringPtr("Support Chat")
	s.NameNorm = session.NormalizeName(s.NameRaw)
	s.Policy = "window"
	s.TokensEstimate = 7

	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01ABC123", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.ID != s.ID {
		t.Errorf("ID = %q, want %q", got.ID, s.ID)
	}
	if got.Policy != "window" {
		t.Errorf("Policy = %q, want window", got.Policy)
	}
	if string(got.State) != string(s.State) {
		t.Errorf("State = %s, want %s", got.State, s.State)
	}
	if got.NameNorm == nil || *got.NameNorm != "support chat" {
		t.Errorf("NameNorm = %v, want support chat", got.NameNorm)
	}
	if got.MessageCount != 2 || got.TokensEstimate != 7 {
		t.Errorf("counts = (%d, %d), want (2, 7)", got.MessageCount, got.TokensEstimate)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", got.DeletedAt)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(context.Background(), db, "nonexistent", false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID error = %v, want NOT_FOUND", err)
	}
}

func TestGetByName(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01NAME", "Proj")
	s.NameRaw = stringPtr("chat")
	s.NameNorm = stringPtr("chat")
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByName(ctx, db, "proj", "chat", false)
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.ID != "01NAME" {
		t.Errorf("ID = %q, want 01NAME", got.ID)
	}

	if _, err := GetByName(ctx, db, "proj", "other", false); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByName(other) error = %v, want NOT_FOUND", err)
	}
}

func TestGetByName_IncludeDeleted_PrefersActive(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	old := newTestSession("01OLD", "default")
	old.NameRaw, old.NameNorm = stringPtr("chat"), stringPtr("chat")
	if err := Insert(ctx, db, old); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01OLD"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := GetByName(ctx, db, "default", "chat", false); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetByName(active) error = %v, want NOT_FOUND", err)
	}
	got, err := GetByName(ctx, db, "default", "chat", true)
	if err != nil {
		t.Fatalf("GetByName(includeDeleted) failed: %v", err)
	}
	if got.ID != "01OLD" {
		t.Errorf("ID = %q, want 01OLD", got.ID)
	}

	active := newTestSession("01NEW", "default")
	active.NameRaw, active.NameNorm = stringPtr("chat"), stringPtr("chat")
	if err := Insert(ctx, db, active); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err = GetByName(ctx, db, "default", "chat", true)
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.ID != "01NEW" {
		t.Errorf("ID = %q, want 01NEW (active preferred)", got.ID)
	}
}

func TestInsert_UniqueConstraint(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestSession("01A", "default")
	a.NameRaw, a.NameNorm = stringPtr("chat"), stringPtr("chat")
	b := newTestSession("01B", "default")
	b.NameRaw, b.NameNorm = stringPtr("Chat"), stringPtr("chat")

	if err := Insert(ctx, db, a); err != nil {
		t.Fatalf("Insert(a) failed: %v", err)
	}
	if err := Insert(ctx, db, b); err != ErrUniqueConstraint {
		t.Errorf("Insert(b) error = %v, want ErrUniqueConstraint", err)
	}
}

func TestCheckNameExists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01A", "default")
	s.NameRaw, s.NameNorm = stringPtr("chat"), stringPtr("chat")
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	exists, err := CheckNameExists(ctx, db, "default", "chat")
	if err != nil || !exists {
		t.Errorf("CheckNameExists(chat) = %v, %v; want true, nil", exists, err)
	}
	exists, err = CheckNameExists(ctx, db, "default", "nope")
	if err != nil || exists {
		t.Errorf("CheckNameExists(nope) = %v, %v; want false, nil", exists, err)
	}
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01UPD", "default")
	s.UpdatedAt = 1
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	s.State = []byte(`{"lc":1,"type":"constructor","id":["x"]}`)
	s.MessageCount = 6
	s.TokensEstimate = 12
	if err := UpdateState(ctx, db, s); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.UpdatedAt == 1 {
		t.Error("UpdateState did not refresh UpdatedAt")
	}

	got, err := GetByID(ctx, db, "01UPD", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if string(got.State) != string(s.State) || got.MessageCount != 6 || got.TokensEstimate != 12 {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateState_Deleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01DEL", "default")
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, s.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if err := UpdateState(ctx, db, s); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateState error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateFull(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01FULL", "default")
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	s.WorkspaceRaw, s.WorkspaceNorm = "Other", "other"
	s.Policy = "summary"
	if err := UpdateFull(ctx, db, s); err != nil {
		t.Fatalf("UpdateFull failed: %v", err)
	}
	got, err := GetByID(ctx, db, "01FULL", true)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.WorkspaceNorm != "other" || got.Policy != "summary" {
		t.Errorf("got workspace %q policy %q", got.WorkspaceNorm, got.Policy)
	}

	missing := newTestSession("01MISSING", "default")
	if err := UpdateFull(ctx, db, missing); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateFull(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestSoftDelete_AlreadyDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := newTestSession("01SD", "default")
	if err := Insert(ctx, db, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, s.ID); err != nil {
		t.Fatalf("first SoftDelete failed: %v", err)
	}
	if err := SoftDelete(ctx, db, s.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second SoftDelete error = %v, want NOT_FOUND", err)
	}
	got, err := GetByID(ctx, db, s.ID, true)
	if err != nil {
		t.Fatalf("GetByID(includeDeleted) failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}
}

func TestListByWorkspace_Pagination(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, id := range []string{"01A", "01B", "01C"} {
		s := newTestSession(id, "proj")
		s.UpdatedAt = int64(100 + i)
		if err := Insert(ctx, db, s); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}
	if err := Insert(ctx, db, newTestSession("01OTHER", "elsewhere")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	items, total, err := ListByWorkspace(ctx, db, "proj", 2, 0, false)
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].ID != "01C" || items[1].ID != "01B" {
		t.Errorf("items = %+v, want [01C 01B]", items)
	}

	items, _, err = ListByWorkspace(ctx, db, "proj", 2, 2, false)
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "01A" {
		t.Errorf("page 2 = %+v, want [01A]", items)
	}
}

func TestListByWorkspace_IncludeDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestSession("01A", "proj")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := Insert(ctx, db, newTestSession("01B", "proj")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01B"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	_, total, err := ListByWorkspace(ctx, db, "proj", 10, 0, false)
	if err != nil || total != 1 {
		t.Errorf("active total = %d, %v; want 1", total, err)
	}
	_, total, err = ListByWorkspace(ctx, db, "proj", 10, 0, true)
	if err != nil || total != 2 {
		t.Errorf("all total = %d, %v; want 2", total, err)
	}
}

func TestPurgeDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, s := range []*session.Session{
		newTestSession("01A", "proj"),
		newTestSession("01B", "proj"),
		newTestSession("01C", "other"),
	} {
		if err := Insert(ctx, db, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if s.ID != "01A" {
			if err := SoftDelete(ctx, db, s.ID); err != nil {
				t.Fatalf("SoftDelete failed: %v", err)
			}
		}
	}

	days := 1
	n, err := PurgeDeleted(ctx, db, nil, &days)
	if err != nil || n != 0 {
		t.Errorf("PurgeDeleted(older than 1 day) = %d, %v; want 0", n, err)
	}

	ws := "Proj"
	n, err = PurgeDeleted(ctx, db, &ws, nil)
	if err != nil || n != 1 {
		t.Errorf("PurgeDeleted(proj) = %d, %v; want 1", n, err)
	}

	n, err = PurgeDeleted(ctx, db, nil, nil)
	if err != nil || n != 1 {
		t.Errorf("PurgeDeleted(all) = %d, %v; want 1", n, err)
	}

	if _, err := GetByID(ctx, db, "01A", false); err != nil {
		t.Errorf("active session purged: %v", err)
	}
}

func TestStreamForExport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestSession("01A", "proj")
	a.CreatedAt = 10
	b := newTestSession("01B", "other")
	b.CreatedAt = 5
	for _, s := range []*session.Session{a, b} {
		if err := Insert(ctx, db, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	rows, err := StreamForExport(ctx, db, nil, false)
	if err != nil {
		t.Fatalf("StreamForExport failed: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		s, err := ScanSessionFromRows(rows)
		if err != nil {
			t.Fatalf("ScanSessionFromRows failed: %v", err)
		}
		ids = append(ids, s.ID)
	}
	if len(ids) != 2 || ids[0] != "01B" || ids[1] != "01A" {
		t.Errorf("ids = %v, want [01B 01A]", ids)
	}
}

func TestFindUniqueName(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, name := range []string{"chat", "chat-2"} {
		s := newTestSession("01"+name, "default")
		s.NameRaw, s.NameNorm = stringPtr(name), stringPtr(name)
		if err := Insert(ctx, db, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := FindUniqueName(ctx, db, "default", "chat")
	if err != nil {
		t.Fatalf("FindUniqueName failed: %v", err)
	}
	if got != "chat-3" {
		t.Errorf("FindUniqueName = %q, want chat-3", got)
	}
}

func TestInsert_WithinTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := Insert(ctx, tx, newTestSession("01TX", "default")); err != nil {
		t.Fatalf("Insert(tx) failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if _, err := GetByID(ctx, db, "01TX", true); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("rolled back row visible: %v", err)
	}
}
