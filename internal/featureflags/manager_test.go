package featureflags

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")
	user := uuid.New()

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, user), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, user), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%")
	user := uuid.MustParse("6f1c3f5e-9d53-4c7b-9a61-1c2d3e4f5a6b")

	assert.True(t, m.Enabled("always", user))
	assert.False(t, m.Enabled("never", user))

	first := m.Enabled("canary", user)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", user), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", uuid.Nil), "percentage rollout requires a user")
	assert.True(t, m.Enabled("always", uuid.Nil))
}

func TestEnabled_PercentageDistribution(t *testing.T) {
	m := NewManager("half=50%")
	enabled := 0
	for i := 0; i < 1000; i++ {
		if m.Enabled("half", uuid.New()) {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 100)
}

func TestDefaults(t *testing.T) {
	user := uuid.New()

	assert.True(t, NewManager("").Enabled(UploadSimilaritySearch, user))
	assert.False(t, NewManager("upload_similarity_search=off").Enabled(UploadSimilaritySearch, user))
	assert.Equal(t, []string{UploadSimilaritySearch}, NewManager("").Names())
}

func TestNewManager_SkipsMalformed(t *testing.T) {
	m := NewManager(" bad ,x=on, Y = 20% ,z=off,w=maybe,v=120% ")

	assert.Equal(t, map[string]string{
		"x":                    "on",
		"y":                    "20%",
		"z":                    "off",
		UploadSimilaritySearch: "on",
	}, m.Raw())
	assert.Len(t, m.Snapshot(uuid.New()), 4)
}

func TestParse(t *testing.T) {
	m, err := Parse("upload_similarity_search=off, beta=10%")
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", UploadSimilaritySearch}, m.Names())

	for _, raw := range []string{"oops", "x=", "x=maybe", "x=101%", "x=-1%"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(UploadSimilaritySearch, uuid.New()))
	assert.Empty(t, m.Raw())
	assert.Empty(t, m.Snapshot(uuid.New()))
}
