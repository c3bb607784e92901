package geocoding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-optimizer/internal/models"
)

type stubGeocoder struct {
	results  []models.Location
	reverse  *models.Location
	err      error
	searches int
}

func (s *stubGeocoder) Search(ctx context.Context, query string, limit int) ([]models.Location, error) {
	return s.SearchWithRetry(ctx, query, limit, 1)
}

func (s *stubGeocoder) SearchWithRetry(_ context.Context, _ string, _, _ int) ([]models.Location, error) {
	s.searches++
	return s.results, s.err
}

func (s *stubGeocoder) Reverse(_ context.Context, _, _ float64) (*models.Location, error) {
	return s.reverse, s.err
}

func TestFallbackSearchLive(t *testing.T) {
	live := []models.Location{{ID: "1", Name: "Live Place", Lat: 1, Lng: 2}}
	f := NewFallback(&stubGeocoder{results: live}, 2)

	assert.Equal(t, live, f.Search(context.Background(), "live", 5))
}

func TestFallbackSearchUsesCatalogOnError(t *testing.T) {
	stub := &stubGeocoder{err: errors.New("down")}
	f := NewFallback(stub, 2)

	got := f.Search(context.Background(), "mall", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Mall", got[0].Name)
}

func TestFallbackSearchUsesCatalogOnEmpty(t *testing.T) {
	f := NewFallback(&stubGeocoder{}, 1)

	got := f.Search(context.Background(), "beach", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "Beach", got[0].Name)
}

func TestFallbackEmptyQueryListsCatalog(t *testing.T) {
	stub := &stubGeocoder{}
	f := NewFallback(stub, 1)

	assert.Len(t, f.Search(context.Background(), "", 5), 8)
	assert.Equal(t, 0, stub.searches)
}

func TestFallbackWithoutGeocoder(t *testing.T) {
	f := NewFallback(nil, 0)
	assert.Len(t, f.Search(context.Background(), "Airport", 5), 1)

	loc := f.Reverse(context.Background(), 40.7128, -74.006)
	assert.Equal(t, "40.71280, -74.00600", loc.Name)
	assert.NotEmpty(t, loc.ID)
}

func TestFallbackReverse(t *testing.T) {
	named := &models.Location{ID: "9", Name: "Somewhere", Lat: 1, Lng: 2}
	f := NewFallback(&stubGeocoder{reverse: named}, 1)
	assert.Equal(t, *named, f.Reverse(context.Background(), 1, 2))

	f = NewFallback(&stubGeocoder{err: errors.New("down")}, 1)
	assert.Equal(t, "1.00000, 2.00000", f.Reverse(context.Background(), 1, 2).Name)
}
