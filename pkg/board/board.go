package board

import (
	"fmt"
	"math/rand"
)

const (
	// Rows is the number of rows on the board.
	Rows = 4
	// TilesPerRow is the number of tiles in each row.
	TilesPerRow = 4
	// Size is the total number of tiles on the board.
	Size = Rows * TilesPerRow
	// TileValue is the magnitude of every tile. Half the tiles in each
	// row carry +TileValue, the other half -TileValue.
	TileValue = 15000
	// WinningTilesPerRow is the number of positive tiles in each row.
	WinningTilesPerRow = 2
)

// Tile is one cell of the board with a hidden signed point value.
type Tile struct {
	Value      int    `json:"value"`
	Revealed   bool   `json:"revealed"`
	SelectedBy string `json:"selectedBy,omitempty"`
	SelectedAt int64  `json:"selectedAt,omitempty"`
}

// Board is an ordered sequence of Size tiles, conceptually Rows rows
// of TilesPerRow.
type Board []Tile

// Generator produces boards with the 8/8 and 2-per-row balance.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator seeded with the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Generate builds a fresh board: each row gets two +TileValue and two
// -TileValue tiles, shuffled within the row, rows concatenated in order.
func (g *Generator) Generate() Board {
	tiles := make(Board, 0, Size)
	for row := 0; row < Rows; row++ {
		rowTiles := make([]Tile, 0, TilesPerRow)
		for i := 0; i < WinningTilesPerRow; i++ {
			rowTiles = append(rowTiles, Tile{Value: TileValue})
		}
		for i := 0; i < TilesPerRow-WinningTilesPerRow; i++ {
			rowTiles = append(rowTiles, Tile{Value: -TileValue})
		}
		g.rng.Shuffle(len(rowTiles), func(i, j int) {
			rowTiles[i], rowTiles[j] = rowTiles[j], rowTiles[i]
		})
		tiles = append(tiles, rowTiles...)
	}
	return tiles
}

// RowOf returns the row a tile index belongs to.
func RowOf(index int) int {
	return index / TilesPerRow
}

// Validate checks the structural invariants: Size tiles total, with
// exactly WinningTilesPerRow positive values in every row.
func (b Board) Validate() error {
	if len(b) != Size {
		return fmt.Errorf("board has %d tiles, expected %d", len(b), Size)
	}
	for row := 0; row < Rows; row++ {
		positive := 0
		for i := 0; i < TilesPerRow; i++ {
			if b[row*TilesPerRow+i].Value > 0 {
				positive++
			}
		}
		if positive != WinningTilesPerRow {
			return fmt.Errorf("row %d has %d positive tiles, expected %d", row, positive, WinningTilesPerRow)
		}
	}
	return nil
}

// Complete reports whether every tile has been revealed.
func (b Board) Complete() bool {
	for i := range b {
		if !b[i].Revealed {
			return false
		}
	}
	return true
}

// Clone returns a copy of the board.
func (b Board) Clone() Board {
	clone := make(Board, len(b))
	copy(clone, b)
	return clone
}
