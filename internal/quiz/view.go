package quiz

import "fmt"

// TileStatus colors an overview button. Answered takes precedence over visited.
type TileStatus string

const (
	TileAnswered TileStatus = "answered"
	TileVisited  TileStatus = "visited"
	TileNone     TileStatus = "none"
)

// Tile is one per-question overview button.
type Tile struct {
	Index    int        `json:"index"`
	Status   TileStatus `json:"status"`
	Reviewed bool       `json:"reviewed"`
	Current  bool       `json:"current"`
}

// Tiles builds the overview grid for the state.
func (s State) Tiles() []Tile {
	tiles := make([]Tile, len(s.Questions))
	for i := range s.Questions {
		status := TileNone
		switch {
		case s.Answers[i] != "":
			status = TileAnswered
		case s.Visited.Has(i):
			status = TileVisited
		}
		tiles[i] = Tile{
			Index:    i,
			Status:   status,
			Reviewed: s.Reviewed.Has(i),
			Current:  i == s.CurrentIndex,
		}
	}
	return tiles
}

// Progress is the attempted share in percent, against the full batch size.
func (s State) Progress(total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(s.Attempted()) * 100 / float64(total)
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Urgent reports whether the countdown display should be highlighted.
func Urgent(seconds int) bool {
	return seconds < FinalMinuteMark
}
