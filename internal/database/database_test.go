package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bundle-deployer/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func testRecord(id, project, environment string, created time.Time) models.DeploymentRecord {
	return models.DeploymentRecord{
		ID:          id,
		Project:     project,
		Environment: environment,
		StoreID:     "builds",
		ObjectKey:   project + "/bundle.zip",
		Status:      models.StatusCreated,
		Message:     "New deployment created",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestInsertDeployment(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := InsertDeployment(db, testRecord("dep-1", "shop", "prod", now)); err != nil {
		t.Fatalf("InsertDeployment failed: %v", err)
	}

	rec, err := GetDeployment(db, "dep-1")
	if err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}

	if rec.Project != "shop" {
		t.Errorf("Project = %v, want %v", rec.Project, "shop")
	}
	if rec.Environment != "prod" {
		t.Errorf("Environment = %v, want %v", rec.Environment, "prod")
	}
	if rec.Status != models.StatusCreated {
		t.Errorf("Status = %v, want %v", rec.Status, models.StatusCreated)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, now)
	}
}

func TestInsertDuplicateDeployment(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	if err := InsertDeployment(db, testRecord("dep-1", "shop", "prod", now)); err != nil {
		t.Fatalf("first InsertDeployment failed: %v", err)
	}
	if err := InsertDeployment(db, testRecord("dep-1", "shop", "prod", now)); err == nil {
		t.Error("expected error inserting duplicate id")
	}
}

func TestUpdateDeploymentStatus(t *testing.T) {
	db := setupTestDB(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := InsertDeployment(db, testRecord("dep-1", "shop", "prod", created)); err != nil {
		t.Fatalf("InsertDeployment failed: %v", err)
	}

	updated := created.Add(time.Minute)
	err := UpdateDeploymentStatus(db, "dep-1", models.StatusFailed, "Failed to copy files", models.PhaseInstall, updated)
	if err != nil {
		t.Fatalf("UpdateDeploymentStatus failed: %v", err)
	}

	rec, err := GetDeployment(db, "dep-1")
	if err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Errorf("Status = %v, want %v", rec.Status, models.StatusFailed)
	}
	if rec.Message != "Failed to copy files" {
		t.Errorf("Message = %v, want %v", rec.Message, "Failed to copy files")
	}
	if rec.LifecycleEvent != models.PhaseInstall {
		t.Errorf("LifecycleEvent = %v, want %v", rec.LifecycleEvent, models.PhaseInstall)
	}
	if !rec.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", rec.UpdatedAt, updated)
	}
}

func TestUpdateUnknownDeployment(t *testing.T) {
	db := setupTestDB(t)

	err := UpdateDeploymentStatus(db, "missing", models.StatusQueued, "", "", time.Now())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("UpdateDeploymentStatus error = %v, want %v", err, sql.ErrNoRows)
	}
}

func TestGetNonExistentDeployment(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetDeployment(db, "non-existent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetDeployment error = %v, want %v", err, sql.ErrNoRows)
	}
}

func TestListDeployments(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	records := []models.DeploymentRecord{
		testRecord("dep-1", "shop", "prod", base),
		testRecord("dep-2", "shop", "staging", base.Add(time.Minute)),
		testRecord("dep-3", "blog", "prod", base.Add(2*time.Minute)),
		testRecord("dep-4", "shop", "prod", base.Add(3*time.Minute)),
	}
	for _, rec := range records {
		if err := InsertDeployment(db, rec); err != nil {
			t.Fatalf("InsertDeployment failed: %v", err)
		}
	}

	tests := []struct {
		name        string
		project     string
		environment string
		expected    []string
	}{
		{"no filters", "", "", []string{"dep-4", "dep-3", "dep-2", "dep-1"}},
		{"project", "shop", "", []string{"dep-4", "dep-2", "dep-1"}},
		{"environment", "", "prod", []string{"dep-4", "dep-3", "dep-1"}},
		{"project and environment", "shop", "prod", []string{"dep-4", "dep-1"}},
		{"no match", "Shop", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListDeployments(db, tt.project, tt.environment)
			if err != nil {
				t.Fatalf("ListDeployments failed: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("ListDeployments returned %d records, want %d", len(got), len(tt.expected))
			}
			for i, rec := range got {
				if rec.ID != tt.expected[i] {
					t.Errorf("record[%d].ID = %v, want %v", i, rec.ID, tt.expected[i])
				}
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)
	now := time.Now().UTC()

	if err := recorder.Begin(testRecord("dep-1", "shop", "prod", now)); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err := recorder.Update(models.DeploymentEvent{
		DeploymentID:   "dep-1",
		Project:        "shop",
		Environment:    "prod",
		Status:         models.StatusSucceeded,
		Message:        "Deployment completed in 3s",
		LifecycleEvent: models.PhaseEnd,
		Timestamp:      now.Add(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rec, err := GetDeployment(db, "dep-1")
	if err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}
	if rec.Status != models.StatusSucceeded {
		t.Errorf("Status = %v, want %v", rec.Status, models.StatusSucceeded)
	}
}
