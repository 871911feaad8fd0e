// Command gen-journal generates synthetic resection journals for replay.
package main

import (
	"flag"
	"log"

	"github.com/parallax-data/bundle.scope/internal/journal"
)

func main() {
	output := flag.String("o", "sample_journal.json", "output path")
	rounds := flag.Int("rounds", 60, "number of adjustment rounds")
	views := flag.Int("views", 3, "views resected per round")
	cameras := flag.Int("cameras", 2, "camera sessions, one intrinsic group each")
	seed := flag.Int64("seed", 1, "rng seed")
	flag.Parse()

	j := journal.Synthesize(journal.SynthConfig{
		Rounds:        *rounds,
		ViewsPerRound: *views,
		Cameras:       *cameras,
		Seed:          *seed,
	})
	if err := journal.Save(*output, j); err != nil {
		log.Fatalf("Failed to write journal: %v", err)
	}
	log.Printf("✓ Created: %s (%d rounds, %d views)", *output, len(j.Rounds), *rounds**views)
}
