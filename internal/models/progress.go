package models

import (
	"encoding/json"
)

// ProgressReport is the opaque final board snapshot a client submits at
// finish. The serialized form is stored verbatim; it is parsed only for the
// win-coercion heuristic and the ranking-time revealed count.
type ProgressReport struct {
	raw json.RawMessage
}

func (p *ProgressReport) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0], data...)
	return nil
}

func (p ProgressReport) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p *ProgressReport) Raw() string {
	return string(p.raw)
}

func ProgressFromRaw(raw string) *ProgressReport {
	if raw == "" {
		return nil
	}
	return &ProgressReport{raw: json.RawMessage(raw)}
}

type progressCell struct {
	Revealed bool `json:"revealed"`
	Mine     bool `json:"mine"`
	IsMine   bool `json:"is_mine"`
}

func (c progressCell) isMine() bool {
	return c.Mine || c.IsMine
}

type progressBoard struct {
	Cells  json.RawMessage `json:"cells"`
	Status string          `json:"status"`
}

type progressPayload struct {
	Board *progressBoard `json:"board"`
}

// RevealedSafe counts revealed non-mine cells in the snapshot. ok is false
// when the snapshot is absent or does not carry a parseable board, in which
// case the snapshot evidences nothing.
func (p *ProgressReport) RevealedSafe() (int, bool) {
	if p == nil || len(p.raw) == 0 {
		return 0, false
	}
	var payload progressPayload
	if err := json.Unmarshal(p.raw, &payload); err != nil || payload.Board == nil {
		return 0, false
	}

	cells, ok := decodeCells(payload.Board.Cells)
	if !ok {
		return 0, false
	}
	count := 0
	for _, c := range cells {
		if c.Revealed && !c.isMine() {
			count++
		}
	}
	return count, true
}

// decodeCells accepts the cell grid either flat or as rows.
func decodeCells(raw json.RawMessage) ([]progressCell, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var flat []progressCell
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, true
	}
	var rows [][]progressCell
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	var cells []progressCell
	for _, row := range rows {
		cells = append(cells, row...)
	}
	return cells, true
}
