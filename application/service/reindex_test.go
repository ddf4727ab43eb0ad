package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosolvent/cosolvent/domain/profile"
)

func TestReindex_Run(t *testing.T) {
	f := newIndexingFixture(t)
	ctx := context.Background()

	for i := range 6 {
		p := profile.New(fmt.Sprintf("u%d", i), profile.BasicInfo{})
		if i%2 == 0 {
			p = p.WithActive(profile.Detail{FarmName: fmt.Sprintf("Farm %d", i), ContactPerson: "C"})
		} else {
			p = p.WithDraft(profile.Detail{FarmName: fmt.Sprintf("Draft %d", i), ContactPerson: "C"})
		}
		_, err := f.profiles.Save(ctx, p)
		require.NoError(t, err)
	}

	r, err := NewReindex(f.profiles, f.indexing, 3, nil)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReindexResult{Indexed: 3, Skipped: 3}, result)

	n, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Running again replaces entries instead of duplicating them.
	_, err = r.Run(ctx)
	require.NoError(t, err)
	n, err = f.index.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestReindex_Cancelled(t *testing.T) {
	f := newIndexingFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewReindex(f.profiles, f.indexing, 0, nil)
	require.NoError(t, err)
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
