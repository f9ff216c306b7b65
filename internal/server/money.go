package server

import "math"

// Balances and prices are int64 grosz internally; the client works in
// PLN floats. Conversion happens only here at the boundary.

func groszToPLN(grosz int64) float64 {
	return float64(grosz) / 100
}

func plnToGrosz(pln float64) int64 {
	return int64(math.Round(pln * 100))
}
