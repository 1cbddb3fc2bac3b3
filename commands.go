package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"imagedupes/database"
	"imagedupes/logging"
	"imagedupes/matcher"
	"imagedupes/report"
	"imagedupes/signalhandler"
	"imagedupes/types"
	"imagedupes/utils"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	reportFormat string
	noColor      bool
	noDatabase   bool
	queryImage   string
	searchLimit  int

	minDimension  int
	weightsFlag   string
	ceilingFlag   int64
	thresholdFlag int
	aspectFilter  bool
)

// withApp runs fn with an opened app and a context cancelled by SIGINT or SIGTERM.
// The cache is snapshotted on the way out whether or not fn succeeded.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx, cancel := signalhandler.SetupHandler(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	return fn(ctx, a)
}

func openDatabase() (*sql.DB, error) {
	if noDatabase || cfg.Database == "" {
		return nil, nil
	}
	return database.InitDatabase(cfg.Database)
}

func addMatcherFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&minDimension, "min-dimension", 0, "Ignore images narrower or shorter than this many pixels")
	f.StringVar(&weightsFlag, "weights", "", "Comma separated quadrant word weights, coarsest first")
	f.Int64Var(&ceilingFlag, "ceiling", 0, "Report nearest matches only below this distance")
	f.IntVar(&thresholdFlag, "threshold", 0, "Perceptual hash Hamming distance below which images are grouped")
	f.BoolVar(&aspectFilter, "aspect-filter", false, "Only pair images with the same aspect ratio")
}

func addReportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&reportFormat, "format", "console", "Report format: console, tsv or json")
	f.BoolVar(&noColor, "no-color", false, "Disable colored console output")
	f.BoolVar(&noDatabase, "no-db", false, "Do not write the report to the database")
}

// newMatcher applies any matcher flags the user set on top of the configured thresholds
func newMatcher(cmd *cobra.Command) (*matcher.Matcher, error) {
	mc := cfg.Matcher
	f := cmd.Flags()
	if f.Changed("min-dimension") {
		mc.MinDimension = minDimension
	}
	if f.Changed("weights") {
		weights, err := utils.ParseWeights(weightsFlag)
		if err != nil {
			return nil, err
		}
		mc.WordWeights = weights
	}
	if f.Changed("ceiling") {
		mc.DistanceCeiling = ceilingFlag
	}
	if f.Changed("threshold") {
		mc.PerceptualThreshold = thresholdFlag
	}
	if f.Changed("aspect-filter") {
		mc.AspectRatioFilter = aspectFilter
	}
	return matcher.New(mc)
}

func colored() bool {
	return !noColor && !color.NoColor
}

func storeReport(mode string, r types.Report) error {
	db, err := openDatabase()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()

	runID := database.NewRunID()
	if err := database.StoreReport(db, runID, mode, r); err != nil {
		return err
	}
	logging.LogInfo("Stored %s report as run %s", mode, runID)
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan PATH...",
	Short: "Fingerprint every image under the given folders",
	Long: `Fingerprint every image under the given folders and cache the results.

Records are also written to the SQLite database unless --no-db is given.

Examples:
  imagedupes scan ~/Pictures /mnt/backup/photos
  imagedupes scan --config imagedupes.yaml --debug ~/Pictures`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		startTime := time.Now()
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, result, err := a.scanRoots(ctx, args)
			if err != nil {
				return err
			}

			db, err := openDatabase()
			if err != nil {
				return err
			}
			if db == nil {
				fmt.Printf("\nTotal execution time: %v\n", time.Since(startTime))
				return nil
			}
			defer db.Close()

			if err := database.StoreRecords(db, database.NewRunID(), records); err != nil {
				return err
			}

			fmt.Printf("\nScan completed successfully!\n")
			fmt.Printf("Total execution time: %v\n", time.Since(startTime))
			fmt.Printf("Database: %s\n", cfg.Database)

			stats, err := database.GetScanStats(db)
			if err == nil {
				fmt.Printf("\nSummary:\n")
				fmt.Printf("- Total images stored: %d\n", stats.TotalImages)
				fmt.Printf("- Undecodable images: %d\n", stats.ErrorCount)
				fmt.Printf("- Failed this run: %d\n", result.Failed)
				fmt.Printf("- Unique file hashes: %d\n", stats.UniqueHashes)
			}
			return nil
		})
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups PATH...",
	Short: "Group exact, rotated and perceptually identical images",
	Long: `Fingerprint the given folders and group images that are connected by a
byte-exact, pixel-exact, rotation-exact or perceptual match. Groups are
transitive: if A matches B and B matches C, all three are reported together.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMatcher(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, _, err := a.scanRoots(ctx, args)
			if err != nil {
				return err
			}

			r := m.Cluster(records)
			if err := report.Write(os.Stdout, reportFormat, r, colored()); err != nil {
				return err
			}
			return storeReport("groups", r)
		})
	},
}

var nearestCmd = &cobra.Command{
	Use:   "nearest PATH...",
	Short: "Report the most similar other image for every image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMatcher(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, _, err := a.scanRoots(ctx, args)
			if err != nil {
				return err
			}

			r, err := m.Nearest(ctx, records)
			if err != nil {
				return err
			}
			if err := report.Write(os.Stdout, reportFormat, r, colored()); err != nil {
				return err
			}
			return storeReport("nearest", r)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search --image PATH FOLDER...",
	Short: "Find the images most similar to one query image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryImage == "" {
			return errors.New("missing query image path (use --image=PATH)")
		}
		if _, err := os.Stat(queryImage); err != nil {
			return errors.Wrap(err, "query image")
		}
		m, err := newMatcher(cmd)
		if err != nil {
			return err
		}

		startTime := time.Now()
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, _, err := a.scanRoots(ctx, args)
			if err != nil {
				return err
			}

			abs, err := utils.AbsPaths([]string{queryImage})
			if err != nil {
				return err
			}
			query, err := a.cache.Get(ctx, abs[0])
			if err != nil {
				return errors.Wrap(err, "fingerprint query image")
			}

			fmt.Println("Searching for similar images...")
			matches, err := m.Query(query, records, searchLimit)
			if err != nil {
				return err
			}

			fmt.Println("\nTop Matches:")
			if len(matches) == 0 {
				fmt.Println("No matches found.")
			}
			for i, match := range matches {
				fmt.Printf("%d. Image: %s\n", i+1, match.MatchedKey)
				fmt.Printf("   Distance: %d\n", match.Distance)
			}

			fmt.Printf("\nTotal search time: %v\n", time.Since(startTime))
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			s := a.cache.Stats()
			fmt.Printf("Cache %q (%s store)\n", cfg.Cache.Name, cfg.Cache.Store)
			fmt.Printf("- Records: %d (restored %d)\n", s.Entries, s.Restored)
			fmt.Printf("- Hits: %d, extractions: %d, failures: %d\n", s.Hits, s.Loads, s.Failures)

			db, err := openDatabase()
			if err != nil || db == nil {
				return err
			}
			defer db.Close()

			stats, err := database.GetScanStats(db)
			if err != nil {
				return err
			}
			fmt.Printf("Database %s\n", cfg.Database)
			fmt.Printf("- Total images: %d\n", stats.TotalImages)
			fmt.Printf("- Undecodable images: %d\n", stats.ErrorCount)
			fmt.Printf("- Unique file hashes: %d\n", stats.UniqueHashes)
			fmt.Printf("- Match runs: %d\n", stats.Runs)
			return nil
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&noDatabase, "no-db", false, "Do not write records to the database")

	for _, cmd := range []*cobra.Command{groupsCmd, nearestCmd} {
		addMatcherFlags(cmd)
		addReportFlags(cmd)
	}
	addMatcherFlags(searchCmd)

	searchCmd.Flags().StringVar(&queryImage, "image", "", "Path to the query image")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Number of matches to show")

	statsCmd.Flags().BoolVar(&noDatabase, "no-db", false, "Do not read the database")
}
