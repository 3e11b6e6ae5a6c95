package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomify/backend/internal/models"
)

func openTestProjectStore(t *testing.T, d Driver) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects."+string(d))
	store, err := OpenProjectStore(d, path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    Driver
		wantErr bool
	}{
		{"", DriverDuckDB, false},
		{"duckdb", DriverDuckDB, false},
		{" SQLite ", DriverSQLite, false},
		{"sqlite3", DriverSQLite, false},
		{"postgres", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDriver(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSQLStore(t *testing.T) {
	for _, d := range []Driver{DriverSQLite, DriverDuckDB} {
		t.Run(string(d), func(t *testing.T) {
			ctx := context.Background()
			store := openTestProjectStore(t, d)
			assert.Equal(t, d, store.Driver())

			img := "data:image/png;base64,iVBORw0KGgo="
			saved, err := store.Save(ctx, models.SaveRequest{
				Item: models.ProjectRecord{
					ID:          "01A",
					Name:        "Residence 01A",
					SourceImage: img,
					Timestamp:   1000,
				},
				Visibility: models.VisibilityPrivate,
			})
			require.NoError(t, err)
			require.NotNil(t, saved)
			assert.Equal(t, img, saved.SourceImage)

			_, err = store.Save(ctx, models.SaveRequest{
				Item: models.ProjectRecord{ID: "01B", Name: "Residence 01B", SourceImage: img, RenderedImage: "data:image/png;base64,AAAA", Timestamp: 2000},
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, "01A")
			require.NoError(t, err)
			assert.Equal(t, "Residence 01A", got.Name)
			assert.Equal(t, img, got.SourceImage)
			assert.Empty(t, got.RenderedImage)

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrProjectNotFound)

			list, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "01B", list[0].ID)
			assert.Equal(t, "data:image/png;base64,AAAA", list[0].RenderedImage)

			list, err = store.List(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestSQLStore_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := openTestProjectStore(t, DriverSQLite)

	req := models.SaveRequest{Item: models.ProjectRecord{ID: "dup", Name: "Residence dup", SourceImage: "x", Timestamp: 1}}
	_, err := store.Save(ctx, req)
	require.NoError(t, err)
	_, err = store.Save(ctx, req)
	assert.Error(t, err)
}

func TestSQLStore_RequiresID(t *testing.T) {
	store := openTestProjectStore(t, DriverSQLite)
	rec, err := store.Save(context.Background(), models.SaveRequest{})
	assert.Error(t, err)
	assert.Nil(t, rec)
}
