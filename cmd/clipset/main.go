// Command clipset draws example clips from an annotated video set and
// reports sampling diagnostics. It is the demo/smoke-test loop for the
// sampler: point it at a dataset config, let it draw, and inspect the
// empirical distribution against the length-weighted target.
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"

	"github.com/banshee-data/clipset/internal/annotation"
	"github.com/banshee-data/clipset/internal/annotdb"
	"github.com/banshee-data/clipset/internal/config"
	"github.com/banshee-data/clipset/internal/dataset"
	"github.com/banshee-data/clipset/internal/framedir"
	"github.com/banshee-data/clipset/internal/monitor"
	"github.com/banshee-data/clipset/internal/monitoring"
)

func main() {
	configPath := flag.String("config", "dataset.json", "dataset config file")
	draws := flag.Int("draws", 0, "number of draws (0 = one logical epoch)")
	reportPath := flag.String("report", "", "write HTML sampling report to this path")
	plotDir := flag.String("plot-dir", "", "write diagnostic plots to this directory")
	flag.Parse()

	if err := run(*configPath, *draws, *reportPath, *plotDir); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string, draws int, reportPath, plotDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	classes, err := annotation.LoadClasses(cfg.GetClassFile())
	if err != nil {
		return err
	}

	videos, err := loadVideos(cfg)
	if err != nil {
		return err
	}
	monitoring.Logf("loaded %d videos, %d classes", len(videos), classes.Len())

	reader := framedir.NewReader(cfg.GetFramesDir(), cfg.GetModality(),
		readerOptions(cfg)...)

	var rng *rand.Rand
	if seed := cfg.GetSeed(); seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}

	ds, err := dataset.New(cfg.ToDatasetConfig(), videos, classes, reader, rng)
	if err != nil {
		return err
	}

	if draws <= 0 {
		draws = ds.Len()
	}

	mon, err := monitor.New(ds.VideoNames(), ds.VideoWeights(), classes.Names(), cfg.GetClipLen())
	if err != nil {
		return err
	}

	for i := 0; i < draws; i++ {
		ex, err := ds.GetExample()
		if err != nil {
			return err
		}
		if err := mon.Record(ex); err != nil {
			return err
		}
		if (i+1)%1000 == 0 {
			monitoring.Logf("%d/%d draws", i+1, draws)
		}
	}

	summary := mon.Summary()
	monitoring.Logf("draws=%d event_ratio=%.3f chi_square=%.4f",
		summary.Draws, summary.EventRatio, summary.ChiSquare)
	for i, name := range summary.VideoNames {
		monitoring.Logf("  %-30s empirical=%.4f expected=%.4f",
			name, summary.Empirical[i], summary.Expected[i])
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := mon.WriteHTMLReport(f); err != nil {
			return err
		}
		monitoring.Logf("wrote report: %s", reportPath)
	}

	if plotDir != "" {
		path, err := mon.SaveLabelDensityPlot(plotDir)
		if err != nil {
			return err
		}
		monitoring.Logf("wrote plot: %s", path)
	}

	return nil
}

// loadVideos reads the annotation set from the sqlite store when db_path is
// configured, otherwise from the label JSON file.
func loadVideos(cfg *config.DatasetConfig) ([]annotation.Video, error) {
	if dbPath := cfg.GetDBPath(); dbPath != "" {
		store, err := annotdb.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.ExportVideos()
	}
	return annotation.LoadVideos(cfg.GetLabelFile())
}

func readerOptions(cfg *config.DatasetConfig) []framedir.Option {
	var opts []framedir.Option
	if ext := cfg.GetFrameExt(); ext != "" {
		opts = append(opts, framedir.WithExtension(ext))
	}
	if dim := cfg.GetCropDim(); dim > 0 {
		opts = append(opts, framedir.WithCrop(dim, cfg.GetSameCropTransform()))
	}
	return opts
}
