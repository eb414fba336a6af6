package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/geom"
)

// spiralPoints samples n points along a golden spiral centred on a 400x400 canvas.
func spiralPoints(n int) []geom.Point {
	p := fit.SpiralParams{CX: 200, CY: 200, A: 35, B: fit.GoldenGrowthRate}
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = p.At(float64(i) * 0.8)
	}
	return pts
}

// withSearchFlags sets small search settings for the duration of a test.
func withSearchFlags(t *testing.T) {
	t.Helper()
	saved := []any{numClusters, maxK, minK, bWeight, generations, popSize, seed, algorithm, restarts, maxDim, workers}
	numClusters, maxK, minK, bWeight = 0, 10, 2, 20000
	generations, popSize, seed, algorithm = 10, 40, 3, fit.AlgorithmElitist
	restarts, maxDim, workers = 1, 1024, 1
	t.Cleanup(func() {
		numClusters, maxK, minK = saved[0].(int), saved[1].(int), saved[2].(int)
		bWeight = saved[3].(float64)
		generations, popSize = saved[4].(int), saved[5].(int)
		seed = saved[6].(uint64)
		algorithm = saved[7].(string)
		restarts, maxDim, workers = saved[8].(int), saved[9].(int), saved[10].(int)
	})
}

func TestOptionsFromFlags(t *testing.T) {
	withSearchFlags(t)
	numClusters = 4
	popSize = 5

	opts := optionsFromFlags()
	if opts.K != 4 || opts.Fit.PopulationSize != 5 || opts.Fit.Seed != 3 || opts.ClusterSeed != 3 {
		t.Errorf("Flags not applied: %+v", opts)
	}
	if opts.Fit.EliteCount > opts.Fit.PopulationSize {
		t.Errorf("Elite count %d exceeds population %d", opts.Fit.EliteCount, opts.Fit.PopulationSize)
	}
	if err := opts.Fit.Validate(); err != nil {
		t.Errorf("Options should validate: %v", err)
	}
}

func TestReadPointSet(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "points.json")
	os.WriteFile(valid, []byte(`{"width": 400, "height": 300, "points": [{"x": 1, "y": 2}]}`), 0644)
	set, err := readPointSet(valid)
	if err != nil {
		t.Fatalf("readPointSet failed: %v", err)
	}
	if set.Width != 400 || set.Height != 300 || len(set.Points) != 1 || set.Points[0].Y != 2 {
		t.Errorf("Unexpected point set: %+v", set)
	}

	noSize := filepath.Join(dir, "nosize.json")
	os.WriteFile(noSize, []byte(`{"points": []}`), 0644)
	if _, err := readPointSet(noSize); err == nil {
		t.Error("Expected error for missing canvas size")
	}

	if _, err := readPointSet(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRunFit(t *testing.T) {
	withSearchFlags(t)

	data, _ := json.Marshal(pointSet{Width: 400, Height: 400, Points: spiralPoints(8)})
	path := filepath.Join(t.TempDir(), "points.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	for _, clustered := range []bool{false, true} {
		t.Run(fmt.Sprintf("cluster=%v", clustered), func(t *testing.T) {
			pointsPath, clusterPts = path, clustered
			cmd, out := testCommand("")
			if err := runFit(cmd, nil); err != nil {
				t.Fatalf("runFit failed: %v", err)
			}

			var res fitOutput
			if err := json.Unmarshal(out.Bytes(), &res); err != nil {
				t.Fatalf("Output is not JSON: %v\n%s", err, out.String())
			}
			if res.Fit == nil || res.Fit.Generations != generations {
				t.Fatalf("Unexpected fit: %+v", res.Fit)
			}
			if res.Rating < 0 || res.Rating > 100 {
				t.Errorf("Rating out of range: %g", res.Rating)
			}
			if clustered && (res.K < 2 || len(res.Centers) != res.K || len(res.Inertia) == 0) {
				t.Errorf("Clustering not reported: k=%d centres=%d curve=%d", res.K, len(res.Centers), len(res.Inertia))
			}
			if !clustered && res.K != 0 {
				t.Errorf("Unclustered fit should not report k, got %d", res.K)
			}
		})
	}
}

func writeDiscImage(t *testing.T, path string, centers []geom.Point) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	const r = 8
	for _, c := range centers {
		cx, cy := int(c.X), int(c.Y)
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
					img.SetNRGBA(x, y, color.NRGBA{A: 255})
				}
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRunAnalyze(t *testing.T) {
	withSearchFlags(t)
	dir := t.TempDir()

	imagePath = filepath.Join(dir, "shells.png")
	outPath = filepath.Join(dir, "overlay.png")
	elbowOut = filepath.Join(dir, "elbow.png")
	chartOut = filepath.Join(dir, "convergence.html")
	jsonOutput = false
	writeDiscImage(t, imagePath, spiralPoints(6))

	cmd, out := testCommand("")
	if err := runAnalyze(cmd, nil); err != nil {
		t.Fatalf("runAnalyze failed: %v", err)
	}
	for _, want := range []string{"Objects: 6", "Rating:", "(golden 0.306"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output should contain %q:\n%s", want, out.String())
		}
	}
	for _, path := range []string{outPath, elbowOut, chartOut} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty %s: %v", path, err)
		}
	}
}

func TestRunAnalyze_TooFewObjects(t *testing.T) {
	withSearchFlags(t)
	dir := t.TempDir()

	imagePath = filepath.Join(dir, "sparse.png")
	outPath = ""
	writeDiscImage(t, imagePath, spiralPoints(2))

	cmd, _ := testCommand("")
	if err := runAnalyze(cmd, nil); err == nil {
		t.Error("Expected error for an image with two objects")
	}
}

func TestRunPreview(t *testing.T) {
	dir := t.TempDir()
	previewImage = filepath.Join(dir, "shells.png")
	previewOut = filepath.Join(dir, "preview.png")
	previewK = 3
	writeDiscImage(t, previewImage, spiralPoints(6))

	cmd, out := testCommand("")
	if err := runPreview(cmd, nil); err != nil {
		t.Fatalf("runPreview failed: %v", err)
	}
	if !strings.Contains(out.String(), "Centres: 3") {
		t.Errorf("Unexpected output: %s", out.String())
	}
	if _, err := os.Stat(previewOut); err != nil {
		t.Errorf("Preview not written: %v", err)
	}
}

func TestStatusCommands(t *testing.T) {
	job := `{"id":"job-1","state":"completed","config":{"imagePath":"shells.png","maxK":10,"minK":2,"bWeight":20000,"generations":100,"popSize":300},` +
		`"generation":100,"bestScore":12.5,"objects":9,"k":3,"rating":81.25,"b":0.3051,"elapsed":1.5,"generationsPerSecond":66.7,` +
		`"params":{"cx":200,"cy":180,"a":30,"b":0.3051}}`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/jobs":
			fmt.Fprintf(w, "[%s]", job)
		case "/api/v1/jobs/job-1/status":
			fmt.Fprint(w, job)
		default:
			http.Error(w, "Job not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	original := serverURL
	serverURL = ts.URL
	defer func() { serverURL = original }()

	t.Run("list", func(t *testing.T) {
		cmd, out := testCommand("")
		if err := runStatus(cmd, nil); err != nil {
			t.Fatalf("runStatus failed: %v", err)
		}
		for _, want := range []string{"Found 1 job(s)", "job-1", "Generation: 100/100", "Rating: 81.25"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("Output should contain %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("detail", func(t *testing.T) {
		cmd, out := testCommand("")
		if err := runStatus(cmd, []string{"job-1"}); err != nil {
			t.Fatalf("runStatus failed: %v", err)
		}
		for _, want := range []string{"Clusters: elbow (2..10)", "Best Score: 12.5000", "Spiral: cx=200.0", "Elapsed: 1.5s"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("Output should contain %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("not found", func(t *testing.T) {
		cmd, _ := testCommand("")
		err := runStatus(cmd, []string{"missing"})
		if err == nil || !strings.Contains(err.Error(), "job not found") {
			t.Errorf("Expected job not found, got %v", err)
		}
	})
}
