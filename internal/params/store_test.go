package params

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		Fixed("bank", 0, 7),
		Range("volume", 0, 99).WithDefault(80),
		Centered("detune", -31, 31),
	)
	require.NoError(t, err)
	return s
}

func TestSchemaRejectsDuplicatesAndBadDefaults(t *testing.T) {
	_, err := NewSchema(Range("a", 0, 1), Range("a", 0, 2))
	assert.Error(t, err)

	_, err = NewSchema(Range("a", 0, 1).WithDefault(4))
	assert.Error(t, err)

	_, err = NewSchema(Def{Name: "", Max: 1})
	assert.Error(t, err)
}

func TestStoreDefaultsInSchemaOrder(t *testing.T) {
	s := NewStore(testSchema(t))

	var names []string
	s.Each(func(_ ID, name string, _ int) { names = append(names, name) })

	assert.Equal(t, []string{"bank", "volume", "detune"}, names)
	assert.Equal(t, 80, s.GetByName("volume", -1))
	assert.Equal(t, 0, s.GetByName("detune", -1))
	assert.Equal(t, -1, s.GetByName("missing", -1))
}

func TestSetRejectsOutOfRangeAndImmutable(t *testing.T) {
	s := NewStore(testSchema(t))

	assert.ErrorIs(t, s.SetByName("volume", 100), ErrOutOfRange)
	assert.ErrorIs(t, s.SetByName("bank", 1), ErrImmutable)
	assert.ErrorIs(t, s.SetByName("nope", 1), ErrUnknownKey)
	assert.NoError(t, s.SetByName("detune", -31))
	assert.Equal(t, -31, s.GetByName("detune", 0))
}

func TestPutClampsAndIgnoresMutability(t *testing.T) {
	schema := testSchema(t)
	s := NewStore(schema)

	s.Put(schema.MustLookup("bank"), 12)
	s.Put(schema.MustLookup("detune"), -40)

	assert.Equal(t, 7, s.GetByName("bank", 0))
	assert.Equal(t, -31, s.GetByName("detune", 0))
}

func TestOnChangePublishesOnlyRealChanges(t *testing.T) {
	s := NewStore(testSchema(t))

	var got []Change
	cancel := s.OnChange(func(c Change) { got = append(got, c) })

	require.NoError(t, s.SetByName("volume", 80)) // unchanged
	require.NoError(t, s.SetByName("volume", 42))
	cancel()
	require.NoError(t, s.SetByName("volume", 43))

	require.Len(t, got, 1)
	assert.Equal(t, "volume", got[0].Name)
	assert.Equal(t, 80, got[0].Old)
	assert.Equal(t, 42, got[0].New)
}

func TestDiffAndClone(t *testing.T) {
	s := NewStore(testSchema(t))
	s.SetText("name", "INIT")
	c := s.Clone()
	assert.Empty(t, s.Diff(c))

	require.NoError(t, c.SetByName("detune", 3))
	c.SetText("name", "BELL")
	assert.ElementsMatch(t, []string{"detune", "name"}, s.Diff(c))
}

func TestJSONRoundTrip(t *testing.T) {
	schema := testSchema(t)
	s := NewStore(schema)
	require.NoError(t, s.SetByName("volume", 12))
	s.SetText("name", "PAD")

	data, err := json.Marshal(s)
	require.NoError(t, err)

	back, unknown, err := UnmarshalInto(schema, data)
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Empty(t, s.Diff(back))
}

func TestLoadReportsUnknownKeys(t *testing.T) {
	s := NewStore(testSchema(t))
	unknown := s.Load(map[string]int{"volume": 5, "zz": 1, "aa": 2})
	assert.Equal(t, []string{"aa", "zz"}, unknown)
	assert.Equal(t, 5, s.GetByName("volume", 0))
}

func TestRandomizeStaysInRangeAndSkipsImmutable(t *testing.T) {
	s := NewStore(testSchema(t))
	var changed []string
	s.OnChange(func(c Change) { changed = append(changed, c.Name) })

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		assert.Equal(t, []string{"detune"}, s.Randomize(r, "de"))
		v := s.GetByName("detune", 99)
		assert.GreaterOrEqual(t, v, -31)
		assert.LessOrEqual(t, v, 31)
	}
	assert.NotEmpty(t, changed)
	assert.NotContains(t, changed, "volume")

	assert.Equal(t, []string{"volume", "detune"}, s.Randomize(r, ""))
	assert.Equal(t, 0, s.GetByName("bank", -1))
}
