// Package freq provides the frequency number to tick-period table used by
// the transmitter.
package freq

import (
	"errors"
	"fmt"
	"math"
)

// DefaultTickRateHz is the device tick rate the default table is computed for.
const DefaultTickRateHz = 100000

// DefaultHz are the ten player frequencies, indexed by frequency number.
var DefaultHz = []float64{1471, 1724, 2000, 2273, 2632, 2941, 3333, 3571, 3846, 4167}

// Default is the tick-period table for DefaultHz at DefaultTickRateHz.
var Default = Table{68, 58, 50, 44, 38, 34, 30, 28, 26, 24}

var (
	// ErrEmpty is returned when a table has no entries.
	ErrEmpty = errors.New("frequency table is empty")

	// ErrZeroPeriod is returned when a table entry is zero.
	ErrZeroPeriod = errors.New("frequency table period must be > 0")
)

// Table holds one period in ticks per frequency number.
type Table []uint32

// Period returns the period for frequency number n.
// It panics if n is out of range, like any slice index.
func (t Table) Period(n uint16) uint32 {
	return t[n]
}

// Len returns the number of frequencies.
func (t Table) Len() int {
	return len(t)
}

// Contains reports whether n is a valid frequency number.
func (t Table) Contains(n int) bool {
	return n >= 0 && n < len(t)
}

// Hz returns the square-wave frequency produced by entry n at the given tick rate.
func (t Table) Hz(tickRateHz float64, n int) float64 {
	return tickRateHz / float64(t[n])
}

// Validate checks that the table is usable by the transmitter.
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmpty
	}
	if len(t) > math.MaxUint16+1 {
		return fmt.Errorf("frequency table has %d entries, max %d", len(t), math.MaxUint16+1)
	}
	for i, p := range t {
		if p == 0 {
			return fmt.Errorf("entry %d: %w", i, ErrZeroPeriod)
		}
	}
	return nil
}

// FromHz builds a table by rounding tickRateHz/hz for each frequency.
func FromHz(tickRateHz float64, hz []float64) (Table, error) {
	if tickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be > 0, got %v", tickRateHz)
	}
	if len(hz) == 0 {
		return nil, ErrEmpty
	}

	t := make(Table, len(hz))
	for i, f := range hz {
		if f <= 0 {
			return nil, fmt.Errorf("entry %d: frequency must be > 0, got %v", i, f)
		}
		p := math.Round(tickRateHz / f)
		if p < 1 {
			return nil, fmt.Errorf("entry %d: %vHz is above the tick rate %vHz: %w", i, f, tickRateHz, ErrZeroPeriod)
		}
		if p > math.MaxUint32 {
			return nil, fmt.Errorf("entry %d: %vHz period overflows", i, f)
		}
		t[i] = uint32(p)
	}
	return t, nil
}
