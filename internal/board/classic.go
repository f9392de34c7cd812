package board

// DefaultSize is the conventional 10×10 board.
const DefaultSize = 100

var classic = MustNew(DefaultSize,
	map[int]int{
		16: 6, 36: 6, 47: 26, 49: 11, 56: 53, 62: 19,
		64: 60, 87: 24, 93: 73, 95: 75, 98: 78,
	},
	map[int]int{
		1: 38, 4: 14, 9: 31, 21: 42, 28: 84,
		51: 67, 71: 91, 80: 100,
	},
)

// Classic returns the reference 100-cell board. Cell 100 has no effect.
func Classic() *Board { return classic }
