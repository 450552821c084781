// Command lip6indoor replays an image directory (such as the LIP6 indoor
// sequence) through the loop closure pipeline and, when a ground-truth matrix
// is supplied, reports precision and recall.
package main

import (
	"bufio"
	"flag"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	uts "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	haloc "github.com/ajaycharan/libhaloc"
	"github.com/ajaycharan/libhaloc/features"
)

var logger = golog.NewLogger("lip6indoor")

func main() {
	imgDir := flag.String("images", "", "directory of sequence images (required)")
	workDir := flag.String("workdir", filepath.Join(os.TempDir(), "haloc"), "working directory for observation records")
	configPath := flag.String("config", "", "optional json file with loop closure parameters")
	gtPath := flag.String("gt", "", "optional ground-truth matrix file")
	gtTolerance := flag.Int("tolerance", 1, "ground-truth index tolerance")
	validate := flag.Bool("validate", false, "enable two-sided temporal validation")
	flag.Parse()

	if *imgDir == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*imgDir, *workDir, *configPath, *gtPath, *gtTolerance, *validate); err != nil {
		logger.Fatal(err)
	}
}

func run(imgDir, workDir, configPath, gtPath string, gtTolerance int, validate bool) error {
	params := haloc.DefaultParams()
	if configPath != "" {
		var err error
		if params, err = haloc.LoadParams(configPath); err != nil {
			return err
		}
	}
	params.WorkDir = workDir
	params.CrossValidate = params.CrossValidate || validate

	paths, err := sortedImagePaths(imgDir)
	if err != nil {
		return err
	}
	logger.Infof("processing directory %s with %d images", imgDir, len(paths))

	var groundTruth [][]int
	if gtPath != "" {
		if groundTruth, err = loadGroundTruth(gtPath, len(paths)); err != nil {
			return err
		}
	}

	lc, err := haloc.New(params, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lc.Finalize(); err != nil {
			logger.Errorw("finalize failed", "error", err)
		}
	}()
	extractor := features.NewExtractor(features.DefaultConfig())

	images := prefetch(paths)

	start := time.Now()
	found, truePositives, falsePositives := 0, 0, 0
	for i, path := range paths {
		name := filepath.Base(path)
		img, err := images[i].get()
		if err != nil {
			logger.Warnw("skipping image", "name", name, "error", err)
			continue
		}
		kps, desc, err := extractor.Extract(img)
		if err != nil {
			logger.Warnw("skipping image", "name", name, "error", err)
			continue
		}
		if err := lc.IngestFeatures(name, kps, desc, nil); err != nil {
			return err
		}
		result, err := lc.Query()
		if err != nil {
			return err
		}
		if !result.Valid {
			continue
		}
		found++
		logger.Infow("loop closure", "image", name, "index", i,
			"matched", result.MatchedName, "matched_index", result.MatchedIndex)
		if groundTruth != nil {
			if matchesGroundTruth(groundTruth, i, result.MatchedIndex, gtTolerance) {
				truePositives++
			} else {
				falsePositives++
			}
		}
	}
	logger.Infof("processed %d images in %v, %d loop closures", len(paths), time.Since(start), found)

	if groundTruth != nil {
		total := totalGroundTruthClosures(groundTruth)
		precision, recall := 0.0, 0.0
		if found > 0 {
			precision = float64(truePositives) / float64(truePositives+falsePositives)
		}
		if total > 0 {
			recall = float64(truePositives) / float64(total)
		}
		logger.Infof("true positives: %d, false positives: %d, total ground truth closures: %d",
			truePositives, falsePositives, total)
		logger.Infof("precision: %.3f, recall: %.3f", precision, recall)
	}
	return nil
}

// lazyImage carries the result of a background decode.
type lazyImage struct {
	done <-chan struct{}
	img  image.Image
	err  error
}

func (l *lazyImage) get() (image.Image, error) {
	<-l.done
	return l.img, l.err
}

// prefetch decodes images in the background with a bounded worker group while
// the pipeline runs strictly sequentially.
func prefetch(paths []string) []*lazyImage {
	var g errgroup.Group
	g.SetLimit(4)
	out := make([]*lazyImage, len(paths))
	for i, path := range paths {
		done := make(chan struct{})
		li := &lazyImage{done: done}
		out[i] = li
		g.Go(func() error {
			defer close(done)
			img, err := imaging.Open(path)
			if err != nil {
				li.err = err
				return nil
			}
			li.img = imaging.Grayscale(img)
			return nil
		})
	}
	// results are drained through the per-image channels; the workers report
	// failures there, never through the group
	go func() { _ = g.Wait() }()
	return out
}

func sortedImagePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg", ".ppm", ".pgm", ".bmp", ".tif", ".tiff", ".gif":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// loadGroundTruth reads an n x n whitespace-separated 0/1 matrix where
// entry (i, j) marks image i as closing a loop with image j.
func loadGroundTruth(path string, n int) ([][]int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer uts.UncheckedErrorFunc(f.Close)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	matrix := make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
		for j := range matrix[i] {
			if !scanner.Scan() {
				return nil, errors.Errorf("ground truth file too short: need %dx%d entries", n, n)
			}
			if scanner.Text() != "0" {
				matrix[i][j] = 1
			}
		}
	}
	return matrix, nil
}

func matchesGroundTruth(gt [][]int, current, matched, tolerance int) bool {
	for j := matched - tolerance; j <= matched+tolerance; j++ {
		if j < 0 || j >= len(gt[current]) {
			continue
		}
		if gt[current][j] == 1 {
			return true
		}
	}
	return false
}

func totalGroundTruthClosures(gt [][]int) int {
	total := 0
	for _, row := range gt {
		for _, v := range row {
			if v == 1 {
				total++
				break
			}
		}
	}
	return total
}
