package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydash/internal/analytics"
	"studydash/internal/models"
)

func TestDirHonoursEnv(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/studydash-test")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/studydash-test", dir)
}

func TestLoginRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	_, err = s.Token()
	require.ErrorIs(t, err, ErrNotLoggedIn)

	s.SetLogin("http://api", "tok", &models.User{ID: 1, Username: "alice", Role: models.RoleAdmin})
	s.SetSleepRoles(3, analytics.SleepRoles{Bedtime: "bed", Risetime: "rise"})
	require.NoError(t, s.Save())

	info, err := os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(dir)
	require.NoError(t, err)
	tok, err := again.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, "alice", again.User().Username)
	roles, ok := again.SleepRoles(3)
	require.True(t, ok)
	assert.True(t, roles.Queryable())

	again.Clear()
	require.NoError(t, again.Save())
	cleared, err := Load(dir)
	require.NoError(t, err)
	_, err = cleared.Token()
	require.ErrorIs(t, err, ErrNotLoggedIn)
	_, ok = cleared.SleepRoles(3)
	assert.True(t, ok, "logout keeps sleep roles")
}

func TestNotesMergeAcrossWriters(t *testing.T) {
	dir := t.TempDir()

	a, err := Load(dir)
	require.NoError(t, err)
	b, err := Load(dir)
	require.NoError(t, err)

	a.SetNote(1, "2025-04-01", "p1", "from a")
	a.SetNote(1, "2025-04-02", "p1", "shared")
	require.NoError(t, a.Save())

	// b never saw a's notes; its save must not drop them
	b.SetNote(1, "2025-04-01", "p2", "from b")
	b.SetNote(1, "2025-04-02", "p1", "b wins")
	require.NoError(t, b.Save())

	final, err := Load(dir)
	require.NoError(t, err)
	notes := final.Notes(1)
	assert.Equal(t, "from a", notes["2025-04-01"]["p1"])
	assert.Equal(t, "from b", notes["2025-04-01"]["p2"])
	assert.Equal(t, "b wins", notes["2025-04-02"]["p1"])

	final.SetNote(1, "2025-04-02", "p1", "")
	require.NoError(t, final.Save())
	reloaded, err := Load(dir)
	require.NoError(t, err)
	_, ok := reloaded.Notes(1)["2025-04-02"]
	assert.False(t, ok)
	assert.Empty(t, reloaded.Notes(2))
}

func TestCorruptSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("{"), 0o600))
	_, err := Load(dir)
	require.Error(t, err)
}

func TestProfile(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadProfile(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, p.Server)
	assert.Nil(t, p.Location())

	yml := `server: https://dash.example.org
study: 4
timezone: Europe/London
variables: [mood:score, sleep:hours]
sleep_roles:
  4:
    bedtime: bed
    risetime: rise
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o600))
	p, err = LoadProfile(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Study)
	assert.Equal(t, "Europe/London", p.Location().String())
	assert.Equal(t, []string{"mood:score", "sleep:hours"}, p.Variables)

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bed", ResolveSleepRoles(s, p, 4).Bedtime)
	s.SetSleepRoles(4, analytics.SleepRoles{Bedtime: "lights_out", Risetime: "wake"})
	assert.Equal(t, "lights_out", ResolveSleepRoles(s, p, 4).Bedtime)

	p.Timezone = "Mars/Olympus"
	require.NoError(t, p.Save(dir))
	_, err = LoadProfile(dir)
	require.Error(t, err)
}
