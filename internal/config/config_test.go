package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCities_Default(t *testing.T) {
	c, err := LoadCities("")
	require.NoError(t, err)
	assert.Equal(t, 75.0, c.MaxDistanceKm)
	assert.Equal(t, 21, c.Set.Len())

	city, ok := c.Set.Lookup("Bangalore")
	require.True(t, ok)
	assert.Equal(t, "bengaluru", city.Slug)

	pop := c.Set.Popular()
	require.Len(t, pop, 8)
	assert.Equal(t, "Mumbai", pop[0].Name)
}

func TestLoadCities_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[city]]
slug = "goa"
name = "Goa"
lat = 15.4909
lon = 73.8278
aliases = ["panaji"]
`), 0o644))

	c, err := LoadCities(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Set.Len())
	assert.Zero(t, c.MaxDistanceKm)
	city, ok := c.Set.Lookup("Panaji")
	require.True(t, ok)
	assert.Equal(t, "Goa", city.Name)
}

func TestParseCities_Errors(t *testing.T) {
	_, err := ParseCities([]byte(`max_distance_km = 10`))
	assert.Error(t, err, "no cities")

	_, err = ParseCities([]byte(`colour = "blue"
[[city]]
slug = "goa"
name = "Goa"
lat = 15.4
lon = 73.8
`))
	assert.ErrorContains(t, err, "unknown key")

	_, err = ParseCities([]byte(`max_distance_km = -1
[[city]]
slug = "goa"
name = "Goa"
lat = 15.4
lon = 73.8
`))
	assert.Error(t, err)

	_, err = LoadCities(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TOOLBELT_OWNER", "919876543210")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("TOOLBELT_HTTP_TIMEOUT", "3s")

	c := FromEnv()
	assert.Equal(t, "919876543210", c.Owner)
	assert.Equal(t, "id", c.SpotifyClientID)
	assert.Equal(t, "secret", c.SpotifyClientSecret)
	assert.Equal(t, 3*time.Second, c.HTTPTimeout)

	t.Setenv("TOOLBELT_HTTP_TIMEOUT", "5")
	assert.Equal(t, 5*time.Second, FromEnv().HTTPTimeout)

	t.Setenv("TOOLBELT_HTTP_TIMEOUT", "soon")
	assert.Equal(t, DefaultHTTPTimeout, FromEnv().HTTPTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOOLBELT_TEST_DOTENV=loaded\n"), 0o644))
	t.Setenv("TOOLBELT_TEST_DOTENV", "")
	os.Unsetenv("TOOLBELT_TEST_DOTENV")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("TOOLBELT_TEST_DOTENV"))
}
