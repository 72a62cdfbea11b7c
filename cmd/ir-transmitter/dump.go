package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sweeney/ir-transmitter/internal/config"
	"github.com/sweeney/ir-transmitter/internal/gpio"
	"github.com/sweeney/ir-transmitter/internal/transmitter"
)

// dumpWidth is the number of ticks per waveform line.
const dumpWidth = 100

func runDump(cfg config.Config) error {
	table, err := cfg.FrequencyTable()
	if err != nil {
		return fmt.Errorf("frequency table: %w", err)
	}
	out := gpio.NewConsoleOutput(os.Stderr)
	defer out.Close()

	tx, err := newTransmitter(cfg, out, table)
	if err != nil {
		return fmt.Errorf("init transmitter: %w", err)
	}
	tx.SetContinuousMode(false)

	sc := statusConfig(cfg, table)
	return dumpBurst(os.Stdout, tx, sc.TickRateHz())
}

// dumpBurst runs one burst to completion without pacing and writes the
// output level of every tick: '-' for HIGH, '_' for LOW.
func dumpBurst(w io.Writer, tx *transmitter.Transmitter, tickRateHz float64) error {
	tx.Run()
	for i := 0; tx.State() != transmitter.StateSignalHigh; i++ {
		if i > 2 {
			return errors.New("burst did not start")
		}
		tx.Tick()
	}

	bw := bufio.NewWriter(w)
	period := tx.Period()
	edges := tx.Counts().Edges
	n := 0
	for tx.Running() {
		c := byte('_')
		if tx.Level() == transmitter.High {
			c = '-'
		}
		bw.WriteByte(c)
		n++
		if n%dumpWidth == 0 {
			bw.WriteByte('\n')
		}
		tx.Tick()
	}
	if n%dumpWidth != 0 {
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "frequency %d: period %d ticks (%.0f Hz), burst %d ticks, %d edges\n",
		tx.FrequencyNumber(), period, tickRateHz/float64(period), n, tx.Counts().Edges-edges+1)
	return bw.Flush()
}
