package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Difficulty
		expectError bool
	}{
		{name: "empty defaults to beginner", input: "", expected: DifficultyBeginner},
		{name: "beginner", input: "beginner", expected: DifficultyBeginner},
		{name: "intermediate", input: "intermediate", expected: DifficultyIntermediate},
		{name: "expert", input: "expert", expected: DifficultyExpert},
		{name: "unknown", input: "nightmare", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDifficulty(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewDescriptor_Presets(t *testing.T) {
	tests := []struct {
		difficulty Difficulty
		width      int
		height     int
		mines      int
	}{
		{DifficultyBeginner, 9, 9, 10},
		{DifficultyIntermediate, 20, 20, 50},
		{DifficultyExpert, 20, 20, 99},
	}

	for _, tt := range tests {
		t.Run(string(tt.difficulty), func(t *testing.T) {
			desc, err := NewDescriptor(tt.difficulty, "")
			require.NoError(t, err)
			assert.Equal(t, tt.width, desc.Width)
			assert.Equal(t, tt.height, desc.Height)
			assert.Equal(t, tt.mines, desc.Mines)
			assert.NotEmpty(t, desc.Seed)
		})
	}
}

func TestNewDescriptor_UnknownDifficulty(t *testing.T) {
	_, err := NewDescriptor(Difficulty("nope"), "")
	assert.Error(t, err)
}

func TestSafeStart_Deterministic(t *testing.T) {
	first := SafeStart(9, 9, "cafebabe12345678")
	second := SafeStart(9, 9, "cafebabe12345678")
	assert.Equal(t, first, second)

	other := SafeStart(9, 9, "deadbeef87654321")
	// Different seeds generally land on different cells; at minimum the
	// derivation must not depend on anything but its inputs
	assert.Equal(t, other, SafeStart(9, 9, "deadbeef87654321"))
}

func TestSafeStart_Interior(t *testing.T) {
	seeds := []string{"00", "a1b2c3d4", "ffffffffffffffff", "seed", "another-seed"}
	for _, seed := range seeds {
		cell := SafeStart(9, 9, seed)
		assert.GreaterOrEqual(t, cell.X, 1, "seed %s", seed)
		assert.LessOrEqual(t, cell.X, 7, "seed %s", seed)
		assert.GreaterOrEqual(t, cell.Y, 1, "seed %s", seed)
		assert.LessOrEqual(t, cell.Y, 7, "seed %s", seed)
	}
}

func TestSafeStart_TinyBoard(t *testing.T) {
	cell := SafeStart(2, 1, "seed")
	assert.GreaterOrEqual(t, cell.X, 0)
	assert.Less(t, cell.X, 2)
	assert.Equal(t, 0, cell.Y)
}

func TestNewSeed_Unique(t *testing.T) {
	a, err := NewSeed()
	require.NoError(t, err)
	b, err := NewSeed()
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestDescriptor_JSONEmitsBothSafeStartKeys(t *testing.T) {
	desc, err := NewDescriptor(DifficultyBeginner, "cafebabe12345678")
	require.NoError(t, err)

	data, err := json.Marshal(desc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "safe_start")
	assert.Contains(t, raw, "safeStart")
	assert.JSONEq(t, string(raw["safe_start"]), string(raw["safeStart"]))
}

func TestDescriptor_JSONAcceptsEitherSafeStartKey(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "snake_case",
			body: `{"width":9,"height":9,"mines":10,"seed":"s","safe_start":{"x":3,"y":4}}`,
		},
		{
			name: "camelCase",
			body: `{"width":9,"height":9,"mines":10,"seed":"s","safeStart":{"x":3,"y":4}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var desc Descriptor
			require.NoError(t, json.Unmarshal([]byte(tt.body), &desc))
			assert.Equal(t, Cell{X: 3, Y: 4}, desc.SafeStart)
		})
	}
}

func TestDescriptor_JSONRoundTrip(t *testing.T) {
	desc, err := NewDescriptor(DifficultyExpert, "roundtrip")
	require.NoError(t, err)

	data, err := json.Marshal(desc)
	require.NoError(t, err)

	var decoded Descriptor
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, desc, decoded)
}

func TestDescriptor_InBounds(t *testing.T) {
	desc := Descriptor{Width: 9, Height: 9}

	assert.True(t, desc.InBounds(0, 0))
	assert.True(t, desc.InBounds(8, 8))
	assert.False(t, desc.InBounds(9, 0))
	assert.False(t, desc.InBounds(0, 9))
	assert.False(t, desc.InBounds(-1, 0))
	assert.False(t, desc.InBounds(0, -1))
}

func TestDescriptor_SafeCells(t *testing.T) {
	desc := Descriptor{Width: 9, Height: 9, Mines: 10}
	assert.Equal(t, 71, desc.SafeCells())
}
