package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"incidents-reseau/config"
	"incidents-reseau/core/utils"
)

func setupStoreTestDB(t *testing.T) IncidentsStore {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{DBURL: filepath.Join(dir, "incidents.db")}
	logger := utils.NewLoggerTo(io.Discard)
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewIncidentsStore(db, false)
}

func createIncidentWithAttachments(t *testing.T, st IncidentsStore, title string, storedNames []string) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := st.BeginCreate(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	inc := &Incident{Title: title, Severity: "Moyenne"}
	id, err := tx.InsertIncident(ctx, inc)
	if err != nil {
		t.Fatalf("insert incident: %v", err)
	}
	for _, name := range storedNames {
		att := &Attachment{
			IncidentID:   id,
			StoredName:   name,
			OriginalName: "rapport.pdf",
			Location:     "/tmp/" + name,
			SizeBytes:    42,
			MimeType:     "application/pdf",
		}
		if _, err := tx.InsertAttachment(ctx, att); err != nil {
			t.Fatalf("insert attachment: %v", err)
		}
	}
	if err := tx.Finalize(ctx, id, len(storedNames)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

func TestCreateTx_CommitsIncidentAndAttachments(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	id := createIncidentWithAttachments(t, st, "Panne routeur", []string{"incident_1_a", "incident_1_b"})

	inc, err := st.GetIncident(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inc == nil {
		t.Fatal("incident not found after commit")
	}
	if inc.AttachmentsCount != 2 || !inc.HasAttachments {
		t.Fatalf("derived fields wrong: count=%d has=%v", inc.AttachmentsCount, inc.HasAttachments)
	}
	atts, err := st.ListAttachments(ctx, id)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("want 2 attachments, got %d", len(atts))
	}
}

func TestCreateTx_RollbackLeavesNoRows(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	tx, err := st.BeginCreate(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.InsertIncident(ctx, &Incident{Title: "abandonné", Severity: "Info"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	count, err := st.CountIncidents(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("want 0 incidents after rollback, got %d", count)
	}
}

func TestInsertAttachment_DuplicateStoredNameFails(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	createIncidentWithAttachments(t, st, "doublon", []string{"incident_1_x"})

	tx, err := st.BeginCreate(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	id, err := tx.InsertIncident(ctx, &Incident{Title: "autre", Severity: "Info"})
	if err != nil {
		t.Fatalf("insert incident: %v", err)
	}
	_, err = tx.InsertAttachment(ctx, &Attachment{
		IncidentID: id, StoredName: "incident_1_x", OriginalName: "x", Location: "/x", SizeBytes: 1, MimeType: "text/plain",
	})
	if err == nil {
		t.Fatal("duplicate stored_name accepted")
	}
}

func TestListIncidents_OrderedByOccurredAtDesc(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 9, 20, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"ancien", "moyen", "récent"} {
		tx, err := st.BeginCreate(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		inc := &Incident{Title: title, Severity: "Info", OccurredAt: base.Add(time.Duration(i) * time.Hour)}
		if _, err := tx.InsertIncident(ctx, inc); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := tx.Finalize(ctx, inc.ID, 0); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	items, err := st.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 incidents, got %d", len(items))
	}
	if items[0].Title != "récent" || items[2].Title != "ancien" {
		t.Fatalf("wrong order: %q, %q, %q", items[0].Title, items[1].Title, items[2].Title)
	}
}

func TestListIncidents_FilterBySeverity(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	for _, sev := range []string{"Critique", "Moyenne", "Critique"} {
		tx, _ := st.BeginCreate(ctx)
		if _, err := tx.InsertIncident(ctx, &Incident{Title: "t", Severity: sev}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	items, err := st.ListIncidents(ctx, IncidentFilter{Severity: "Critique"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 Critique incidents, got %d", len(items))
	}
}

func TestRecountAttachments_RepairsDrift(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	id := createIncidentWithAttachments(t, st, "dérive", []string{"incident_d_1", "incident_d_2"})

	// Remove one row behind the counter's back.
	atts, err := st.ListAttachments(ctx, id)
	if err != nil || len(atts) != 2 {
		t.Fatalf("list: %v (%d)", err, len(atts))
	}
	if _, err := st.DeleteAttachment(ctx, atts[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	drifts, err := st.RecountAttachments(ctx)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if len(drifts) != 1 || drifts[0].IncidentID != id || drifts[0].Stored != 2 || drifts[0].Actual != 1 {
		t.Fatalf("unexpected drift report: %+v", drifts)
	}

	inc, err := st.GetIncident(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inc.AttachmentsCount != 1 || !inc.HasAttachments {
		t.Fatalf("repair failed: count=%d has=%v", inc.AttachmentsCount, inc.HasAttachments)
	}

	// A clean table reports nothing.
	drifts, err = st.RecountAttachments(ctx)
	if err != nil {
		t.Fatalf("second recount: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("want no drift on clean table, got %+v", drifts)
	}
}

func TestSeedDemoData_OnlyOnEmptyTable(t *testing.T) {
	st := setupStoreTestDB(t)
	ctx := context.Background()

	added, err := st.SeedDemoData(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if added != 5 {
		t.Fatalf("want 5 seeded incidents, got %d", added)
	}

	added, err = st.SeedDemoData(ctx)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if added != 0 {
		t.Fatalf("seed must be a no-op on a non-empty table, added %d", added)
	}

	items, err := st.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("want 5 incidents, got %d", len(items))
	}
	if items[0].Title != "Surcharge bande passante" {
		t.Fatalf("newest demo incident first, got %q", items[0].Title)
	}
}

func TestGetIncident_MissReturnsNil(t *testing.T) {
	st := setupStoreTestDB(t)
	inc, err := st.GetIncident(context.Background(), 4242)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inc != nil {
		t.Fatalf("want nil for missing id, got %+v", inc)
	}
}
