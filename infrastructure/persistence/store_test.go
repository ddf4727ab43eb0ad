package persistence_test

import (
	"context"
	"testing"

	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/infrastructure/persistence"
	"github.com/cosolvent/cosolvent/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewAssetStore(testdb.New(t))

	saved, err := store.Save(ctx, asset.New("a1", "u1", "text/plain", "gs://bucket/a1.txt"))
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt().IsZero())

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID())
	assert.Equal(t, "gs://bucket/a1.txt", got.URL())
	assert.False(t, got.HasDescription())

	_, err = store.Save(ctx, got.WithDescription("Organic wheat farm, 500 acres"))
	require.NoError(t, err)

	got, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Organic wheat farm, 500 acres", got.Description())
	assert.Equal(t, saved.CreatedAt().Unix(), got.CreatedAt().Unix())
}

func TestAssetStore_GetMissing(t *testing.T) {
	store := persistence.NewAssetStore(testdb.New(t))

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrDataConsistency)
}

func TestProfileStore_DraftLifecycle(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewProfileStore(testdb.New(t))

	created, err := store.Save(ctx, profile.New("u1", profile.BasicInfo{FirstName: "Jane", Country: "Kenya"}))
	require.NoError(t, err)
	assert.NotZero(t, created.ID())
	assert.False(t, created.HasActive())
	assert.False(t, created.HasDraft())

	draft := profile.Detail{FarmName: "Prairie Grain", ContactPerson: "Jane", Description: "wheat"}
	withDraft, err := store.SaveDraft(ctx, "u1", draft)
	require.NoError(t, err)
	require.True(t, withDraft.HasDraft())
	assert.Equal(t, "Prairie Grain", withDraft.Draft().FarmName)

	// Full replace: fields absent from the new draft are gone.
	replaced, err := store.SaveDraft(ctx, "u1", profile.Detail{FarmName: "Prairie Grain II", ContactPerson: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "", replaced.Draft().Description)

	approved, err := store.Approve(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, approved.HasDraft())
	require.True(t, approved.HasActive())
	assert.Equal(t, "Prairie Grain II", approved.Active().FarmName)

	reloaded, err := store.GetByUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, reloaded.HasDraft())
	assert.Equal(t, "Prairie Grain II", reloaded.Active().FarmName)
	assert.Equal(t, "Kenya", reloaded.Basic().Country)

	_, err = store.Approve(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNoDraft)
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestProfileStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewProfileStore(testdb.New(t))

	_, err := store.GetByUser(ctx, "ghost")
	assert.ErrorIs(t, err, fault.ErrDataConsistency)

	_, err = store.SaveDraft(ctx, "ghost", profile.Detail{FarmName: "x", ContactPerson: "y"})
	assert.ErrorIs(t, err, fault.ErrDataConsistency)

	_, err = store.Approve(ctx, "ghost")
	assert.ErrorIs(t, err, fault.ErrDataConsistency)
}

func TestProfileStore_SaveReplacesSameUser(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewProfileStore(testdb.New(t))

	first, err := store.Save(ctx, profile.New("u1", profile.BasicInfo{FirstName: "A"}))
	require.NoError(t, err)
	second, err := store.Save(ctx, profile.New("u1", profile.BasicInfo{FirstName: "B"}))
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	_, err = store.Save(ctx, profile.New("u2", profile.BasicInfo{}))
	require.NoError(t, err)

	all, err := store.Find(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[0].Basic().FirstName)
	assert.Equal(t, "u2", all[1].UserID())
}

func TestValidateSchema(t *testing.T) {
	require.NoError(t, persistence.ValidateSchema(testdb.New(t)))
	assert.Error(t, persistence.ValidateSchema(testdb.NewPlain(t)))
}
