package board

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Difficulty names a fixed (width, height, mines) preset.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyExpert       Difficulty = "expert"
)

type preset struct {
	width  int
	height int
	mines  int
}

var presets = map[Difficulty]preset{
	DifficultyBeginner:     {width: 9, height: 9, mines: 10},
	DifficultyIntermediate: {width: 20, height: 20, mines: 50},
	DifficultyExpert:       {width: 20, height: 20, mines: 99},
}

// Cell is a board coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Descriptor is the agreed board tuple. Given (width, height, mines, seed)
// any client reproduces the identical mine layout, with safe_start and its
// 8-neighborhood guaranteed mine-free on first reveal. The server stores and
// serves the tuple; it never generates the layout itself.
type Descriptor struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Mines      int        `json:"mines"`
	Seed       string     `json:"seed"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	SafeStart  Cell       `json:"-"`
}

// MarshalJSON emits safe_start under both snake_case and camelCase keys so
// mixed-case clients can consume either.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	type alias Descriptor
	return json.Marshal(struct {
		alias
		SafeStart      Cell `json:"safe_start"`
		SafeStartCamel Cell `json:"safeStart"`
	}{
		alias:          alias(d),
		SafeStart:      d.SafeStart,
		SafeStartCamel: d.SafeStart,
	})
}

// UnmarshalJSON accepts safe_start under either key, snake_case winning when
// both are present.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type alias Descriptor
	aux := struct {
		*alias
		SafeStart      *Cell `json:"safe_start"`
		SafeStartCamel *Cell `json:"safeStart"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.SafeStart != nil:
		d.SafeStart = *aux.SafeStart
	case aux.SafeStartCamel != nil:
		d.SafeStart = *aux.SafeStartCamel
	}
	return nil
}

// ParseDifficulty validates a difficulty key, defaulting to beginner when
// empty.
func ParseDifficulty(value string) (Difficulty, error) {
	if value == "" {
		return DifficultyBeginner, nil
	}
	d := Difficulty(value)
	if _, ok := presets[d]; !ok {
		return "", fmt.Errorf("unknown difficulty %q", value)
	}
	return d, nil
}

// NewSeed generates a short opaque seed string.
func NewSeed() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// NewDescriptor derives the full board tuple for a difficulty, generating a
// fresh seed when seed is empty.
func NewDescriptor(difficulty Difficulty, seed string) (Descriptor, error) {
	p, ok := presets[difficulty]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown difficulty %q", difficulty)
	}
	if seed == "" {
		generated, err := NewSeed()
		if err != nil {
			return Descriptor{}, err
		}
		seed = generated
	}
	return Descriptor{
		Width:      p.width,
		Height:     p.height,
		Mines:      p.mines,
		Seed:       seed,
		Difficulty: difficulty,
		SafeStart:  SafeStart(p.width, p.height, seed),
	}, nil
}

// SafeStart picks the required first-revealed cell deterministically from the
// seed. The cell is interior whenever the board is at least 3x3 so the full
// 8-neighborhood fits inside the board.
func SafeStart(width, height int, seed string) Cell {
	hx := fnv.New64a()
	hx.Write([]byte(seed))
	hx.Write([]byte{'x'})
	hy := fnv.New64a()
	hy.Write([]byte(seed))
	hy.Write([]byte{'y'})

	x := pickCoord(hx.Sum64(), width)
	y := pickCoord(hy.Sum64(), height)
	return Cell{X: x, Y: y}
}

func pickCoord(h uint64, size int) int {
	if size >= 3 {
		return 1 + int(h%uint64(size-2))
	}
	if size <= 0 {
		return 0
	}
	return int(h % uint64(size))
}

// InBounds reports whether (x, y) lies inside the board.
func (d Descriptor) InBounds(x, y int) bool {
	return x >= 0 && x < d.Width && y >= 0 && y < d.Height
}

// SafeCells is the number of non-mine cells, the count a finished winning
// board must have revealed.
func (d Descriptor) SafeCells() int {
	return d.Width*d.Height - d.Mines
}
