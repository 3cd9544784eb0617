package market

// Direction is the side of a perpetual-futures position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for longs and -1 for shorts, so PnL can be written
// direction-free as sign * (exit - entry) * quantity.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

func (d Direction) Valid() bool {
	return d == Long || d == Short
}
