package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `{
  "version": 2,
  "games": [
    {
      "id": "ml",
      "name": "Mobile Legends",
      "categories": ["MOBA", "Popular"],
      "products": [
        {"id": "ml-86", "name": "86 Diamonds", "price": 18000, "originalPrice": 20000, "discount": "10%", "tags": null}
      ],
      "promos": [
        {"id": "p-ml", "name": "ML", "discount": "10%", "startDate": "2024-01-01T00:00:00Z",
         "endDate": "2024-01-31T23:59:59Z", "applicableProducts": ["ml-86"], "extra": {"a": [1, 2]}}
      ]
    }
  ],
  "globalPromos": [
    {"id": "g-qris", "name": "QRIS", "discount": "3%", "startDate": "2024-01-01T07:00:00+07:00",
     "endDate": "2024-12-31T23:59:59Z", "paymentMethod": "QRIS"}
  ]
}`

func TestDecode(t *testing.T) {
	games, global, err := Decode(strings.NewReader(testDocument))
	require.NoError(t, err)

	require.Len(t, games, 1)
	g := games[0]
	assert.Equal(t, "ml", g.ID)
	assert.Equal(t, []string{"MOBA", "Popular"}, g.Categories)
	require.Len(t, g.Products, 1)
	assert.Equal(t, int64(18000), g.Products[0].Price)
	assert.Nil(t, g.Products[0].Tags)
	require.Len(t, g.Promos, 1)
	assert.Equal(t, []string{"ml-86"}, g.Promos[0].ApplicableProducts)

	require.Len(t, global, 1)
	assert.Equal(t, "QRIS", global[0].PaymentMethod)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), global[0].StartDate)
}

func TestDecodeErrors(t *testing.T) {
	for _, doc := range []string{
		`{"games": [{"id": 1}]}`,
		`{"games": [{"products": [{"price": "free"}]}]}`,
		`{"globalPromos": [{"startDate": "yesterday"}]}`,
		`{"games": [`,
	} {
		t.Run(doc, func(t *testing.T) {
			_, _, err := Decode(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestCatalogLoader(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	plain := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(plain, []byte(testDocument), 0o600))

	compressed := filepath.Join(dir, "catalog.json.gz")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(testDocument))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, compressed} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			snap, err := NewCatalogLoader(path).LoadSnapshot(ctx)
			require.NoError(t, err)

			owner, err := snap.GetProductOwner(ctx, "ml-86")
			require.NoError(t, err)
			assert.Equal(t, "ml", owner.ID)

			global, err := snap.GlobalPromos(ctx)
			require.NoError(t, err)
			assert.Len(t, global, 1)
		})
	}

	t.Run("Missing", func(t *testing.T) {
		_, err := NewCatalogLoader(filepath.Join(dir, "nope.json")).LoadSnapshot(ctx)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewCatalogLoader(plain).LoadSnapshot(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
