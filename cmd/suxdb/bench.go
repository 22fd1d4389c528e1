// bench.go -- 'bench' command implementation: query-throughput
// measurement for an assembled DB, exercising the same Lookup path
// 'dump' and 'fsck' already drive.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package main

import (
	"fmt"
	"os"
	"time"

	mph "github.com/opencoff/go-sux"
	flag "github.com/opencoff/pflag"
)

type benchCommand struct{}

func init() {
	m := benchCommand{}
	registerCommand("bench", &m)
}

func (m *benchCommand) run(args []string, opt *Option) (err error) {
	var rounds int

	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.IntVarP(&rounds, "rounds", "r", 1, "Number of passes over all keys")
	fs.Usage = func() {
		fmt.Printf(`Usage: bench [options] DB

where 'DB' is the name of a MPH db. Every key in the DB is looked up
'rounds' times and the aggregate throughput is reported.

Options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("bench: insufficient args")
	}

	db, err := mph.NewDBReader(args[0], 1000)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	defer db.Close()

	var keys []uint64
	err = db.IterFunc(func(k uint64, _ []byte) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	opt.Printf("bench: %d keys, %d rounds\n", len(keys), rounds)

	var hits, misses int
	start := time.Now()
	for r := 0; r < rounds; r++ {
		for _, k := range keys {
			if _, ok := db.Lookup(k); ok {
				hits++
			} else {
				misses++
			}
		}
	}
	elapsed := time.Since(start)

	total := hits + misses
	if total == 0 {
		fmt.Printf("bench: no keys to query\n")
		return nil
	}

	perOp := elapsed / time.Duration(total)
	fmt.Printf("bench: %d lookups (%d hit, %d miss) in %s (%s/op, %.0f ops/sec)\n",
		total, hits, misses, elapsed, perOp, float64(total)/elapsed.Seconds())
	return nil
}
