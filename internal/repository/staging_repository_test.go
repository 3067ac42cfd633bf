package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

func newTestRepo(t *testing.T) StagingRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.StagingRecord{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return NewStagingRepository(db)
}

func stagedRecord(id, campaignID string) *model.StagingRecord {
	return &model.StagingRecord{
		ID:         id,
		CampaignID: campaignID,
		ResourceID: "res-1",
		ShardType:  "npc",
		Content:    `{"type":"npc","name":"Elara"}`,
		Metadata:   `{"entityType":"npc","confidence":0.8}`,
	}
}

func TestCreateBatch_AllVisibleAsStaged(t *testing.T) {
	repo := newTestRepo(t)

	records := []*model.StagingRecord{
		stagedRecord("s1", "camp-1"),
		stagedRecord("s2", "camp-1"),
		stagedRecord("s3", "camp-1"),
	}
	// A caller-supplied status must be overridden.
	records[1].Status = model.StagingStatusApproved

	require.NoError(t, repo.CreateBatch(records))

	found, err := repo.FindByCampaign("camp-1", model.StagingStatusStaged)
	require.NoError(t, err)
	assert.Len(t, found, 3)
	for _, rec := range found {
		assert.Equal(t, model.StagingStatusStaged, rec.Status)
	}
}

func TestCreateBatch_DuplicateIDLeavesNoPartialBatch(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateOne(stagedRecord("dup", "camp-1")))

	batch := []*model.StagingRecord{
		stagedRecord("new-1", "camp-1"),
		stagedRecord("dup", "camp-1"), // primary key collision
		stagedRecord("new-2", "camp-1"),
	}
	err := repo.CreateBatch(batch)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStagingWrite)

	found, findErr := repo.FindByCampaign("camp-1", "")
	require.NoError(t, findErr)
	assert.Len(t, found, 1, "failed batch must not leave partial inserts")
}

func TestCreateOne_AssignsIDWhenEmpty(t *testing.T) {
	repo := newTestRepo(t)
	rec := stagedRecord("", "camp-1")

	require.NoError(t, repo.CreateOne(rec))

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.StagingStatusStaged, rec.Status)
}

func TestFindByCampaign_EmptyResultIsNotAnError(t *testing.T) {
	repo := newTestRepo(t)

	found, err := repo.FindByCampaign("nope", "")

	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdateStatusBatch_MovesRecordsBetweenStatusFilters(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateBatch([]*model.StagingRecord{
		stagedRecord("a", "camp-1"),
		stagedRecord("b", "camp-1"),
		stagedRecord("c", "camp-1"),
	}))

	require.NoError(t, repo.UpdateStatusBatch([]string{"a", "b"}, model.StagingStatusApproved))

	staged, err := repo.FindByCampaign("camp-1", model.StagingStatusStaged)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "c", staged[0].ID)

	approved, err := repo.FindByCampaign("camp-1", model.StagingStatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 2)
}

func TestUpdateStatusBatch_MissingTargetIsAlreadyResolved(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateOne(stagedRecord("a", "camp-1")))

	err := repo.UpdateStatusBatch([]string{"a", "gone"}, model.StagingStatusApproved)

	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// The surviving target still moved: last write wins.
	rec, findErr := repo.FindByID("a")
	require.NoError(t, findErr)
	assert.Equal(t, model.StagingStatusApproved, rec.Status)
}

func TestUpdateStatusBatch_RejectsUnknownStatus(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateOne(stagedRecord("a", "camp-1")))

	err := repo.UpdateStatusBatch([]string{"a"}, "banana")

	assert.ErrorIs(t, err, ErrStagingWrite)
}

func TestUpdateStatus_LastWriteWins(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateOne(stagedRecord("a", "camp-1")))

	require.NoError(t, repo.UpdateStatus("a", model.StagingStatusApproved))
	require.NoError(t, repo.UpdateStatus("a", model.StagingStatusRejected))

	rec, err := repo.FindByID("a")
	require.NoError(t, err)
	assert.Equal(t, model.StagingStatusRejected, rec.Status)
}

func TestUpdateContent_PreservesIdentityFields(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateOne(stagedRecord("a", "camp-1")))

	require.NoError(t, repo.UpdateContent("a", `{"type":"npc","name":"Renamed"}`, `{"confidence":0.9}`))

	rec, err := repo.FindByID("a")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", rec.CampaignID)
	assert.Equal(t, "res-1", rec.ResourceID)
	assert.Contains(t, rec.Content, "Renamed")
	assert.Contains(t, rec.Metadata, "0.9")
}

func TestUpdateContent_MissingRecordIsAlreadyResolved(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateContent("gone", "x", "")

	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestDelete_ScopedVariants(t *testing.T) {
	repo := newTestRepo(t)
	a := stagedRecord("a", "camp-1")
	b := stagedRecord("b", "camp-1")
	b.ResourceID = "res-2"
	c := stagedRecord("c", "camp-2")
	require.NoError(t, repo.CreateBatch([]*model.StagingRecord{a, b, c}))

	require.NoError(t, repo.Delete("a"))
	_, err := repo.FindByID("a")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.DeleteByResource("res-2"))
	_, err = repo.FindByID("b")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.DeleteByCampaign("camp-2"))
	found, findErr := repo.FindByCampaign("camp-2", "")
	require.NoError(t, findErr)
	assert.Empty(t, found)
}

func TestSearchApproved_SubstringOverContentAndType(t *testing.T) {
	repo := newTestRepo(t)
	a := stagedRecord("a", "camp-1")
	a.Content = `{"type":"npc","name":"Elara the Ranger"}`
	b := stagedRecord("b", "camp-1")
	b.ShardType = "location"
	b.Content = `{"type":"location","name":"Thornkeep"}`
	c := stagedRecord("c", "camp-1")
	c.Content = `{"type":"npc","name":"Elara of the Vale"}`
	require.NoError(t, repo.CreateBatch([]*model.StagingRecord{a, b, c}))

	// Only a and b get approved; c stays staged.
	require.NoError(t, repo.UpdateStatusBatch([]string{"a", "b"}, model.StagingStatusApproved))

	byName, err := repo.SearchApproved("camp-1", "Elara")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "a", byName[0].ID)

	byType, err := repo.SearchApproved("camp-1", "location")
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "b", byType[0].ID)

	none, err := repo.SearchApproved("camp-1", "dragon")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchApproved_EscapesLikeWildcards(t *testing.T) {
	repo := newTestRepo(t)
	a := stagedRecord("a", "camp-1")
	a.Content = `{"note":"100% genuine"}`
	require.NoError(t, repo.CreateOne(a))
	require.NoError(t, repo.UpdateStatus("a", model.StagingStatusApproved))

	hits, err := repo.SearchApproved("camp-1", "100%")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	miss, err := repo.SearchApproved("camp-1", "1__%")
	require.NoError(t, err)
	assert.Empty(t, miss)
}
