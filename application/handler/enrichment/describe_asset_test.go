package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/infrastructure/extract"
	"github.com/cosolvent/cosolvent/infrastructure/persistence"
	"github.com/cosolvent/cosolvent/internal/testdb"
)

type published struct {
	name queue.Name
	body []byte
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, name queue.Name, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{name: name, body: body})
	return nil
}

func (p *recordingPublisher) on(name queue.Name) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.name == name {
			out = append(out, m)
		}
	}
	return out
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(context.Context, string, string) (string, error) {
	return f.text, f.err
}

// countingAssets counts writes to the wrapped store.
type countingAssets struct {
	asset.Store
	saves int
}

func (c *countingAssets) Save(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	c.saves++
	return c.Store.Save(ctx, a)
}

func delivery(t *testing.T, name queue.Name, payload any) queue.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.NewDelivery("m1", name, body, 1, time.Now())
}

type fixture struct {
	assets    *countingAssets
	publisher *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := persistence.NewAssetStore(testdb.New(t))
	_, err := store.Save(context.Background(), asset.New("a1", "u1", "text/plain", "gs://assets/u1/farm.txt"))
	require.NoError(t, err)
	return fixture{assets: &countingAssets{Store: store}, publisher: &recordingPublisher{}}
}

func TestDescribeAsset_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := NewDescribeAsset(f.assets, fakeExtractor{text: "Organic wheat farm,\n\n  500 acres\t"}, f.publisher, nil)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, delivery(t, queue.AssetUploadQueue, queue.AssetUploaded{AssetID: "a1"})))

	a, err := f.assets.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Organic wheat farm, 500 acres", a.Description())

	completed := f.publisher.on(queue.MetadataCompletedQueue)
	require.Len(t, completed, 1)
	assert.JSONEq(t, `{"asset_id":"a1","user_id":"u1"}`, string(completed[0].body))

	ready := f.publisher.on(queue.AssetReadyForIndexingQueue)
	require.Len(t, ready, 1)
	assert.JSONEq(t, `{"asset_id":"a1","user_id":"u1","description":"Organic wheat farm, 500 acres"}`, string(ready[0].body))
}

func TestDescribeAsset_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := NewDescribeAsset(f.assets, fakeExtractor{text: "Organic wheat farm"}, f.publisher, nil)
	require.NoError(t, err)

	d := delivery(t, queue.AssetUploadQueue, queue.AssetUploaded{AssetID: "a1", UserID: "u9"})
	require.NoError(t, h.Handle(ctx, d))
	first, err := f.assets.Get(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, d))
	second, err := f.assets.Get(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, 1, f.assets.saves, "an unchanged description is not rewritten")
	assert.Equal(t, first.Description(), second.Description())

	completed := f.publisher.on(queue.MetadataCompletedQueue)
	require.Len(t, completed, 2, "the event is published on every delivery")
	assert.JSONEq(t, `{"asset_id":"a1","user_id":"u9"}`, string(completed[1].body))
}

func TestDescribeAsset_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing asset", func(t *testing.T) {
		f := newFixture(t)
		h, err := NewDescribeAsset(f.assets, fakeExtractor{text: "x"}, f.publisher, nil)
		require.NoError(t, err)
		err = h.Handle(ctx, delivery(t, queue.AssetUploadQueue, queue.AssetUploaded{AssetID: "nope"}))
		assert.ErrorIs(t, err, fault.ErrDataConsistency)
		assert.Empty(t, f.publisher.messages)
	})

	t.Run("invalid payload", func(t *testing.T) {
		f := newFixture(t)
		h, err := NewDescribeAsset(f.assets, fakeExtractor{text: "x"}, f.publisher, nil)
		require.NoError(t, err)
		err = h.Handle(ctx, delivery(t, queue.AssetUploadQueue, map[string]string{}))
		assert.ErrorIs(t, err, fault.ErrValidation)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		f := newFixture(t)
		h, err := NewDescribeAsset(f.assets, fakeExtractor{err: extract.ErrStorageUnavailable}, f.publisher, nil)
		require.NoError(t, err)
		err = h.Handle(ctx, delivery(t, queue.AssetUploadQueue, queue.AssetUploaded{AssetID: "a1"}))
		assert.True(t, fault.Retryable(err))
		assert.Zero(t, f.assets.saves)
		assert.Empty(t, f.publisher.messages)
	})

	t.Run("publish failure", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.err = errors.New("channel closed")
		h, err := NewDescribeAsset(f.assets, fakeExtractor{text: "x"}, f.publisher, nil)
		require.NoError(t, err)
		err = h.Handle(ctx, delivery(t, queue.AssetUploadQueue, queue.AssetUploaded{AssetID: "a1"}))
		assert.ErrorIs(t, err, fault.ErrTransientIO)
	})
}

func TestNewDescribeAsset_RequiresDependencies(t *testing.T) {
	_, err := NewDescribeAsset(nil, fakeExtractor{}, &recordingPublisher{}, nil)
	assert.Error(t, err)
	_, err = NewDescribeAsset(&countingAssets{}, nil, &recordingPublisher{}, nil)
	assert.Error(t, err)
	_, err = NewDescribeAsset(&countingAssets{}, fakeExtractor{}, nil, nil)
	assert.Error(t, err)
}
