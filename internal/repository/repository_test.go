package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/esg-insight/internal/database"
	"github.com/fyerfyer/esg-insight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB 使用内存SQLite并替换全局连接
func setupTestDB(t *testing.T) *gorm.DB {
	dbName := fmt.Sprintf("file:memdb_repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")
	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = originalDB
	})
	return db
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	setupTestDB(t)
	repo := NewSessionRepository()

	session := &models.Session{Title: "Acme 2024", IndexID: "acme"}
	require.NoError(t, repo.CreateSession(session))
	assert.NotEmpty(t, session.ID, "ID should be generated")

	saved, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme 2024", saved.Title)
	assert.Equal(t, "acme", saved.IndexID)

	_, err = repo.GetSession("missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionRepository_Turns(t *testing.T) {
	setupTestDB(t)
	repo := NewSessionRepository()

	session := &models.Session{ID: "s1", Title: "t"}
	require.NoError(t, repo.CreateSession(session))

	err := repo.AppendTurns("s1",
		&models.Turn{Role: models.RoleUser, Content: "What are the emissions targets?"},
		&models.Turn{Role: models.RoleAssistant, Content: "Net zero by 2040.", Mode: "concise",
			Sources: datatypes.JSON(`[{"source_id":"r1"}]`)},
	)
	require.NoError(t, err)
	require.NoError(t, repo.AppendTurns("s1", &models.Turn{Role: models.RoleUser, Content: "And scope 3?"}))

	turns, err := repo.ListTurns("s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "Net zero by 2040.", turns[1].Content)
	assert.Equal(t, "And scope 3?", turns[2].Content)

	// 会话不存在时追加失败
	err = repo.AppendTurns("missing", &models.Turn{Role: models.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, repo.ClearTurns("s1"))
	turns, err = repo.ListTurns("s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	_, err = repo.GetSession("s1")
	assert.NoError(t, err, "clear keeps the session")
}

func TestSessionRepository_ListAndDelete(t *testing.T) {
	setupTestDB(t)
	repo := NewSessionRepository()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateSession(&models.Session{ID: fmt.Sprintf("s%d", i), Title: "t"}))
	}

	sessions, total, err := repo.ListSessions(0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, sessions, 2)

	require.NoError(t, repo.AppendTurns("s0", &models.Turn{Role: models.RoleUser, Content: "q"}))
	require.NoError(t, repo.DeleteSession("s0"))
	_, err = repo.GetSession("s0")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.ErrorIs(t, repo.DeleteSession("s0"), models.ErrSessionNotFound)
}

func TestReportRepository(t *testing.T) {
	setupTestDB(t)
	repo := NewReportRepository()

	report := &models.Report{
		FileName:      "acme.pdf",
		FileType:      "pdf",
		StoragePath:   "reports/acme.pdf",
		FileSize:      1024,
		Environmental: 40,
		Governance:    60,
		Status:        models.ReportStatusScored,
	}
	require.NoError(t, repo.Create(report))
	assert.NotEmpty(t, report.ID)

	saved, err := repo.GetByID(report.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, saved.Environmental)
	assert.False(t, saved.UploadedAt.IsZero())

	saved.Status = models.ReportStatusIndexed
	saved.IndexID = report.ID
	require.NoError(t, repo.Update(saved))

	require.NoError(t, repo.Create(&models.Report{FileName: "b.md", FileType: "md", StoragePath: "b", Status: models.ReportStatusFailed}))

	all, total, err := repo.List(0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	indexed, total, err := repo.List(0, 10, models.ReportStatusIndexed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, report.ID, indexed[0].ID)

	require.NoError(t, repo.Delete(report.ID))
	_, err = repo.GetByID(report.ID)
	assert.ErrorIs(t, err, models.ErrReportNotFound)
	assert.ErrorIs(t, repo.Delete(report.ID), models.ErrReportNotFound)

	assert.Error(t, repo.Update(&models.Report{}))
}

func TestIndexRepository(t *testing.T) {
	setupTestDB(t)
	repo := NewIndexRepository()

	first := &models.IndexRecord{
		IndexID:    "acme",
		Model:      "hashing/64",
		Dimension:  64,
		ChunkCount: 3,
		Version:    "v1",
		BuiltAt:    time.Now(),
	}
	require.NoError(t, repo.Upsert(first))

	// 重建后整体替换
	second := &models.IndexRecord{
		IndexID:    "acme",
		Model:      "cohere/embed-english-v3.0",
		Dimension:  1024,
		ChunkCount: 7,
		Version:    "v2",
		BuiltAt:    time.Now(),
	}
	require.NoError(t, repo.Upsert(second))

	got, err := repo.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version)
	assert.Equal(t, 7, got.ChunkCount)
	assert.Equal(t, "cohere/embed-english-v3.0", got.Model)

	records, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, repo.Delete("acme"))
	_, err = repo.Get("acme")
	assert.ErrorIs(t, err, models.ErrIndexRecordNotFound)
	assert.ErrorIs(t, repo.Delete("acme"), models.ErrIndexRecordNotFound)
	assert.Error(t, repo.Upsert(&models.IndexRecord{}))
}
