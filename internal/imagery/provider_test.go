package imagery_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/storage"
	"github.com/storefront-admin/backend/internal/testutil"
)

func newProvider(t *testing.T) (*imagery.LocalProvider, *testutil.MockAssetStore, string) {
	t.Helper()
	assets := testutil.NewMockAssetStore()
	dir := t.TempDir()
	p, err := imagery.NewLocalProvider(assets, dir)
	require.NoError(t, err)
	return p, assets, dir
}

func TestLocalProvider_Upload(t *testing.T) {
	ctx := context.Background()
	p, assets, _ := newProvider(t)

	img, err := p.Upload(ctx, "lobby.png", "", bytes.NewReader(testutil.PNG(64, 32)))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 32, img.Height)
	assert.Equal(t, imagery.AssetURL(img.Ref), img.URL)
	assert.True(t, strings.HasPrefix(img.URL, "/api/assets/"))

	asset, err := assets.Get(img.Ref)
	require.NoError(t, err)
	assert.Equal(t, "image/png", asset.ContentType)
	assert.Equal(t, "lobby.png", asset.Name)
}

func TestLocalProvider_UploadRejectsNonImages(t *testing.T) {
	p, assets, _ := newProvider(t)

	_, err := p.Upload(context.Background(), "notes.txt", "text/plain", strings.NewReader("not an image"))
	assert.ErrorIs(t, err, imagery.ErrUnsupportedImage)
	assert.Zero(t, assets.Count())
}

func TestLocalProvider_UploadStoreFailure(t *testing.T) {
	p, assets, _ := newProvider(t)
	assets.FailSaves(assert.AnError)

	_, err := p.Upload(context.Background(), "a.png", "", bytes.NewReader(testutil.PNG(4, 4)))
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestLocalProvider_ReplaceAndResolve(t *testing.T) {
	ctx := context.Background()
	p, assets, dir := newProvider(t)

	_, err := p.Resolve(ctx, "lobby")
	assert.ErrorIs(t, err, models.ErrNotFound)

	first, err := p.Upload(ctx, "day.png", "", bytes.NewReader(testutil.PNG(20, 10)))
	require.NoError(t, err)
	second, err := p.Upload(ctx, "night.png", "", bytes.NewReader(testutil.PNG(40, 10)))
	require.NoError(t, err)

	_, err = p.Replace(ctx, "lobby", first.Ref)
	require.NoError(t, err)
	replaced, err := p.Replace(ctx, "lobby", second.Ref)
	require.NoError(t, err)
	assert.Equal(t, second, replaced)

	got, err := p.Resolve(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = p.Replace(ctx, "lobby", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	got, err = p.Resolve(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, second.Ref, got.Ref, "failed replace keeps the previous background")

	reopened, err := imagery.NewLocalProvider(assets, dir)
	require.NoError(t, err)
	got, err = reopened.Resolve(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, second.Ref, got.Ref)
}

func TestLocalProvider_OverLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	assets, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	p, err := imagery.NewLocalProvider(assets, dir)
	require.NoError(t, err)

	data := testutil.PNG(8, 6)
	img, err := p.Upload(ctx, "sign.png", "", bytes.NewReader(data))
	require.NoError(t, err)

	rc, err := p.Open(ctx, img.Ref)
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}
