package persona

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedLoadsEmbeddedCatalog(t *testing.T) {
	items := Seed()
	require.Len(t, items, 5)

	ids := make([]string, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
		assert.NotEmpty(t, p.SystemPrompt, p.ID)
		assert.NotEmpty(t, p.Greeting, p.ID)
	}
	assert.Equal(t, []string{"dojun", "jia", "eric", "hana", "minjun"}, ids)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
personas:
  - id: a
    systemPrompt: x
  - id: a
    systemPrompt: y
`))
	assert.ErrorContains(t, err, "duplicate")
}

func TestParseRequiresSystemPrompt(t *testing.T) {
	_, err := Parse([]byte("personas:\n  - id: a\n"))
	assert.ErrorContains(t, err, "system prompt")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas:\n  - id: solo\n    name: Solo\n    systemPrompt: be brief\n"), 0o600))

	items, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "be brief", items[0].SystemPrompt)

	items, err = LoadFile("")
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestPublicProjectionHidesSystemPrompt(t *testing.T) {
	p := Seed()[0]
	data, err := json.Marshal(p.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "systemPrompt")
	assert.Contains(t, string(data), `"greeting"`)

	// The full struct also hides it from JSON.
	data, err = json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), p.SystemPrompt)
}

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.FindByID("jia")
	require.True(t, ok)
	assert.Equal(t, "지아", p.Name)

	_, ok = store.FindByID("nobody")
	assert.False(t, ok)

	list := store.List()
	list[0].Name = "mutated"
	again, _ := store.FindByID(list[0].ID)
	assert.NotEqual(t, "mutated", again.Name)
}
