package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rooms:
  - name: general
    time_limit: 60
  - name: "  random  "
`), 0644))

	rooms, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []SeedRoom{{Name: "general", TimeLimit: 60}, {Name: "random"}}, rooms)

	r := NewRegistry()
	created := r.Seed(rooms)
	require.Len(t, created, 2)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "general", created[0].Name())
}

func TestParseSeed_RejectsEmptyName(t *testing.T) {
	_, err := ParseSeed([]byte("rooms:\n  - name: \"\"\n"))
	assert.Error(t, err)
}

func TestParseSeed_InvalidYAML(t *testing.T) {
	_, err := ParseSeed([]byte("rooms: [unterminated"))
	assert.Error(t, err)
}

func TestLoadSeed_MissingFile(t *testing.T) {
	_, err := LoadSeed("/nonexistent/rooms.yaml")
	assert.Error(t, err)
}
