package nav

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomify/backend/internal/models"
)

var testState = models.HandoffState{
	InitialImage: "data:image/png;base64,AAAA",
	Name:         "Residence 01X",
}

func TestStash_TakeIsOneShot(t *testing.T) {
	s := NewStash(0)
	token := s.Put("/visualizer/01X", testState)
	require.NotEmpty(t, token)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Take(token, "/visualizer/01X")
	require.True(t, ok)
	assert.Equal(t, testState, got)

	_, ok = s.Take(token, "/visualizer/01X")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStash_PathMismatchKeepsEntry(t *testing.T) {
	s := NewStash(0)
	token := s.Put("/visualizer/01X", testState)

	_, ok := s.Take(token, "/visualizer/other")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Take(token, "/visualizer/01X")
	assert.True(t, ok)
}

func TestStash_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewStash(time.Minute)
	s.now = func() time.Time { return now }

	expired := s.Put("/visualizer/a", testState)
	now = now.Add(30 * time.Second)
	fresh := s.Put("/visualizer/b", testState)
	now = now.Add(45 * time.Second)

	_, ok := s.Take(expired, "/visualizer/a")
	assert.False(t, ok)

	assert.Equal(t, 0, s.Cleanup())
	now = now.Add(time.Minute)
	assert.Equal(t, 1, s.Cleanup())
	_, ok = s.Take(fresh, "/visualizer/b")
	assert.False(t, ok)
}

func TestRouter_GoTo(t *testing.T) {
	s := NewStash(0)
	var loc string
	r := NewRouter(s, func(l string) { loc = l })

	r.GoTo("/visualizer/01X", models.NavigateOptions{State: testState})

	require.True(t, strings.HasPrefix(loc, "/visualizer/01X?"+QueryKey+"="))
	u, err := url.Parse(loc)
	require.NoError(t, err)
	token := u.Query().Get(QueryKey)

	view := Resolve(s, "01X", u.Path, token)
	assert.True(t, view.FromHandoff)
	assert.Equal(t, "Residence 01X", view.Name)
	assert.Equal(t, testState.InitialImage, view.SourceImage)
}

func TestResolve_DegradesWithoutState(t *testing.T) {
	s := NewStash(0)

	for _, token := range []string{"", "unknown-token"} {
		view := Resolve(s, "01X", "/visualizer/01X", token)
		assert.False(t, view.FromHandoff)
		assert.Equal(t, models.UntitledProject, view.Name)
		assert.Empty(t, view.SourceImage)
		assert.Equal(t, "01X", view.ID)
	}
}

func TestResolve_EmptyNameFallsBack(t *testing.T) {
	s := NewStash(0)
	token := s.Put("/visualizer/01X", models.HandoffState{InitialImage: "data:image/png;base64,AAAA"})

	view := Resolve(s, "01X", "/visualizer/01X", token)
	assert.True(t, view.FromHandoff)
	assert.Equal(t, models.UntitledProject, view.Name)
	assert.Equal(t, "data:image/png;base64,AAAA", view.SourceImage)
}
