// Command reachplot draws end-effector reach against shoulder angle for a
// handful of elbow angles and writes the result as a PNG.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/armguard/internal/config"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
	"github.com/banshee-data/armguard/internal/security"
)

var (
	out        = flag.String("out", "reach.png", "Output PNG path")
	configPath = flag.String("config", "", "Path to an arm config JSON file (defaults apply when empty)")
	elbowList  = flag.String("elbows", "0,45,90,135,180", "Comma-separated elbow angles to plot")
	step       = flag.Int("step", 5, "Shoulder sampling step in degrees")
)

func parseAngles(s string) ([]int, error) {
	var angles []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid angle %q: %w", f, err)
		}
		angles = append(angles, v)
	}
	if len(angles) == 0 {
		return nil, fmt.Errorf("no angles given")
	}
	return angles, nil
}

// reachCurve samples reach across the legal shoulder range at a fixed elbow
// angle.
func reachCurve(cfg safety.Config, elbow, step int) plotter.XYs {
	r := cfg.Limits.Shoulder
	pts := make(plotter.XYs, 0, (r.Max-r.Min)/step+1)
	for s := r.Min; s <= r.Max; s += step {
		p := pose.Home.With(pose.Shoulder, s).With(pose.Elbow, elbow)
		pts = append(pts, plotter.XY{X: float64(s), Y: safety.Reach(p, cfg.Links)})
	}
	return pts
}

func reachPlot(cfg safety.Config, elbows []int, step int) (*plot.Plot, error) {
	if step < 1 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}

	p := plot.New()
	p.Title.Text = "End-effector reach"
	p.X.Label.Text = "Shoulder (°)"
	p.Y.Label.Text = "Reach"

	for i, elbow := range elbows {
		line, err := plotter.NewLine(reachCurve(cfg, elbow, step))
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("elbow %d°", elbow), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func main() {
	flag.Parse()

	cfg := config.EmptyArmConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadArmConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if err := security.ValidateOutputPath(*out); err != nil {
		log.Fatalf("bad -out: %v", err)
	}

	elbows, err := parseAngles(*elbowList)
	if err != nil {
		log.Fatalf("bad -elbows: %v", err)
	}

	p, err := reachPlot(cfg.GetSafetyConfig(), elbows, *step)
	if err != nil {
		log.Fatalf("failed to build plot: %v", err)
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, *out); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %s", *out)
}
