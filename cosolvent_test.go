package cosolvent_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosolvent/cosolvent"
	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
)

// fakeTextProvider answers every chat with a fixed profile and records the
// prompts it was sent.
type fakeTextProvider struct {
	mu      sync.Mutex
	prompts []string
}

func (p *fakeTextProvider) ChatCompletion(_ context.Context, req provider.ChatCompletionRequest) (provider.ChatCompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range req.Messages() {
		p.prompts = append(p.prompts, m.Content())
	}
	reply := `{"farm_name":"Prairie Grain Co.","contact_person":"Ada","description":"Organic wheat farm, 500 acres"}`
	return provider.NewChatCompletionResponse(reply, "stop", provider.NewUsage(10, 10, 20)), nil
}

func (p *fakeTextProvider) sawText(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prompt := range p.prompts {
		if strings.Contains(prompt, text) {
			return true
		}
	}
	return false
}

func newClient(t *testing.T, opts ...cosolvent.Option) *cosolvent.Client {
	t.Helper()
	dir := t.TempDir()
	base := []cosolvent.Option{
		cosolvent.WithDataDir(dir),
		cosolvent.WithSQLite(filepath.Join(dir, "data.db")),
		cosolvent.WithBusPollPeriod(10 * time.Millisecond),
		cosolvent.WithWorkerCount(1),
		cosolvent.WithEmbeddingDimension(16),
	}
	client, err := cosolvent.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := cosolvent.New()
	assert.ErrorIs(t, err, cosolvent.ErrNoDatabase)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestNew_RequiresTextProvider(t *testing.T) {
	dir := t.TempDir()
	_, err := cosolvent.New(
		cosolvent.WithDataDir(dir),
		cosolvent.WithSQLite(filepath.Join(dir, "data.db")),
	)
	assert.ErrorIs(t, err, cosolvent.ErrNoTextProvider)

	client := newClient(t, cosolvent.WithSkipProviderValidation())
	assert.Equal(t, "fallback", string(client.Embedding.Mode()))
}

func TestClient_AssetToDraftProfile(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/u1/farm.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("Organic wheat farm, 500 acres"))
	}))
	defer storage.Close()

	text := &fakeTextProvider{}
	client := newClient(t, cosolvent.WithTextProvider(text))
	ctx := context.Background()

	_, err := client.Profiles.Save(ctx, profile.New("u1", profile.BasicInfo{Country: "Canada"}))
	require.NoError(t, err)
	_, err = client.Assets.Save(ctx, asset.New("a1", "u1", "text/plain", storage.URL+"/assets/u1/farm.txt"))
	require.NoError(t, err)

	require.NoError(t, client.StartWorker(ctx))
	require.NoError(t, client.Publish(ctx, "asset_upload", []byte(`{"asset_id":"a1","user_id":"u1"}`)))

	require.Eventually(t, func() bool {
		p, err := client.Profiles.GetByUser(ctx, "u1")
		return err == nil && p.HasDraft()
	}, 10*time.Second, 20*time.Millisecond)

	a, err := client.Assets.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Organic wheat farm, 500 acres", a.Description())
	assert.True(t, text.sawText("Organic wheat farm, 500 acres"))

	p, err := client.Profiles.GetByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Prairie Grain Co.", p.Draft().FarmName)
	assert.Contains(t, p.Draft().Description, "Organic wheat farm, 500 acres")
	assert.NotNil(t, p.Draft().UpdatedAt)
}

func TestClient_ApproveIndexesProfile(t *testing.T) {
	client := newClient(t, cosolvent.WithTextProvider(&fakeTextProvider{}))
	ctx := context.Background()

	draft := profile.Detail{
		FarmName:      "Highland Coffee",
		ContactPerson: "Wanjiru",
		Description:   "Shade grown arabica",
		Products:      []profile.Product{{Name: "Arabica", Category: "coffee", Unit: "kg"}},
	}
	_, err := client.Profiles.Save(ctx, profile.New("u1", profile.BasicInfo{Country: "Kenya"}).WithDraft(draft))
	require.NoError(t, err)

	require.NoError(t, client.StartWorker(ctx))
	approved, err := client.Approve(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, approved.HasActive())
	assert.False(t, approved.HasDraft())

	var matches []search.Match
	require.Eventually(t, func() bool {
		matches, err = client.Search.Search(ctx, service.SearchRequest{
			Query:   "arabica coffee",
			Filters: search.NewFilters(search.WithRegions("Kenya")),
		})
		return err == nil && len(matches) == 1
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, "u1", matches[0].ID())
	assert.Equal(t, "u1", matches[0].Metadata().ProducerID)
}

func TestClient_Approve_NoDraft(t *testing.T) {
	client := newClient(t, cosolvent.WithSkipProviderValidation())
	ctx := context.Background()

	_, err := client.Approve(ctx, "ghost")
	assert.ErrorIs(t, err, fault.ErrDataConsistency)

	_, err = client.Profiles.Save(ctx, profile.New("u2", profile.BasicInfo{}))
	require.NoError(t, err)
	_, err = client.Approve(ctx, "u2")
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestClient_Publish_Validation(t *testing.T) {
	client := newClient(t, cosolvent.WithSkipProviderValidation())
	ctx := context.Background()

	tests := []struct {
		name  string
		queue string
		body  string
		want  error
	}{
		{"unknown queue", "nope", `{}`, queue.ErrUnknownQueue},
		{"malformed body", "asset_upload", `{`, fault.ErrValidation},
		{"missing asset id", "asset_upload", `{"user_id":"u1"}`, fault.ErrValidation},
		{"missing user id", "metadata_completed", `{"asset_id":"a1"}`, fault.ErrValidation},
		{"generated without user", "profile_generated", `{}`, fault.ErrValidation},
		{"approved without identity", "profile_approved", `{"ai_profile":"x"}`, fault.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(ctx, tt.queue, []byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.NoError(t, client.Publish(ctx, "profile_generated", []byte(`{"user_id":"u1"}`)))
}

func TestClient_Close(t *testing.T) {
	dir := t.TempDir()
	client, err := cosolvent.New(
		cosolvent.WithDataDir(dir),
		cosolvent.WithSQLite(filepath.Join(dir, "data.db")),
		cosolvent.WithSkipProviderValidation(),
	)
	require.NoError(t, err)
	require.NoError(t, client.StartWorker(context.Background()))

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Close(), cosolvent.ErrClientClosed)
	assert.ErrorIs(t, client.StartWorker(context.Background()), cosolvent.ErrClientClosed)
	assert.ErrorIs(t, client.Publish(context.Background(), "asset_upload", []byte(`{"asset_id":"a"}`)), cosolvent.ErrClientClosed)
}
