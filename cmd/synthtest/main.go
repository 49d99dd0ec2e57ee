// Command synthtest knocks a synthetic crystal off its orientation, refines
// it back against its own best spots and prints how much was recovered.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"

	"mandexing/internal/app"
	"mandexing/internal/config"
	"mandexing/internal/crystal"
	"mandexing/internal/logging"
	"mandexing/pkg/geometry"
)

func main() {
	cfgPath := flag.String("c", "", "Config file (defaults plus MANDEX_* env when empty)")
	spots := flag.Int("n", 8, "Number of spots to refine against")
	keys := flag.Int("k", 3, "Random key presses used to mis-orient the crystal")
	seed := flag.Int64("seed", 1, "Random seed")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	session, err := app.NewSession(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build session: %v\n", err)
		os.Exit(1)
	}
	truth := session.Rotation()

	// Step 1: pick the spots closest to the sphere at the true orientation
	fmt.Printf("=== Choosing %d spots ===\n", *spots)
	preds := session.Predictions()
	sort.Slice(preds, func(i, j int) bool { return preds[i].Weight < preds[j].Weight })
	var chosen []crystal.Reflection
	for _, r := range preds {
		if r.HKL == [3]int{} {
			continue
		}
		chosen = append(chosen, r)
		if len(chosen) == *spots {
			break
		}
	}
	if len(chosen) == 0 {
		fmt.Fprintln(os.Stderr, "No spots predicted; check cell, wavelength and resolution")
		os.Exit(1)
	}
	for _, r := range chosen {
		fmt.Printf("  %4d %4d %4d  weight %.4f\n", r.HKL[0], r.HKL[1], r.HKL[2], r.Weight)
	}

	// Step 2: mis-orient with random key presses
	fmt.Printf("\n=== Mis-orienting with %d key presses ===\n", *keys)
	rng := rand.New(rand.NewSource(*seed))
	wasd := []rune{'w', 'a', 's', 'd'}
	for i := 0; i < *keys; i++ {
		key := wasd[rng.Intn(len(wasd))]
		if _, err := session.KeyRotate(key); err != nil {
			fmt.Fprintf(os.Stderr, "Rotation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  %c", key)
	}
	fmt.Println()
	before := angleBetween(truth, session.Rotation())
	fmt.Printf("  error %.4f°\n", before)

	// Step 3: refine
	fmt.Printf("\n=== Refining ===\n")
	for _, r := range chosen {
		if err := session.WatchHKL(r.HKL[0], r.HKL[1], r.HKL[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot watch %v: %v\n", r, err)
			os.Exit(1)
		}
	}
	res, err := session.Refine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refinement failed: %v\n", err)
		os.Exit(1)
	}
	after := angleBetween(truth, session.Rotation())

	fmt.Printf("  score       %.6f -> %.6f\n", res.InitialScore, res.FinalScore)
	fmt.Printf("  evaluations %d\n", res.Evaluations)
	fmt.Printf("  error       %.4f° -> %.4f°\n", before, after)
}

// angleBetween returns the rotation angle in degrees taking a onto b.
func angleBetween(a, b geometry.Mat3) float64 {
	d := b.Mul(a.Transpose())
	c := (d[0] + d[4] + d[8] - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, c))) * 180 / math.Pi
}
