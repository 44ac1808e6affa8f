package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
)

const defaultChartStep = 5

// reachGrid samples reach over the legal shoulder/elbow plane. Points inside a
// collision zone are returned separately.
func reachGrid(cfg safety.Config, step int) (free, blocked []opts.ScatterData, maxReach float64) {
	home := pose.Home
	for s := cfg.Limits.Shoulder.Min; s <= cfg.Limits.Shoulder.Max; s += step {
		for e := cfg.Limits.Elbow.Min; e <= cfg.Limits.Elbow.Max; e += step {
			p := home.With(pose.Shoulder, s).With(pose.Elbow, e)
			reach := safety.Reach(p, cfg.Links)
			if reach > maxReach {
				maxReach = reach
			}
			point := opts.ScatterData{Value: []interface{}{s, e, reach}}

			inZone := false
			for _, z := range cfg.Zones {
				if z.Contains(p) {
					inZone = true
					break
				}
			}
			if inZone {
				blocked = append(blocked, point)
			} else {
				free = append(free, point)
			}
		}
	}
	return free, blocked, maxReach
}

// reachChart renders an HTML scatter of end-effector reach across the
// shoulder/elbow plane. Query params:
//   - step (optional; default 5) sampling interval in degrees, 1..45
func (s *Server) reachChart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	step := defaultChartStep
	if v := r.URL.Query().Get("step"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 45 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'step' parameter: expected 1-45")
			return
		}
		step = parsed
	}

	cfg := s.ctrl.Validator().Config()
	free, blocked, maxReach := reachGrid(cfg, step)
	if maxReach == 0 {
		maxReach = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Arm Reach", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "End-effector reach", Subtitle: fmt.Sprintf("step=%d° points=%d blocked=%d", step, len(free)+len(blocked), len(blocked))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: cfg.Limits.Shoulder.Min, Max: cfg.Limits.Shoulder.Max, Name: "Shoulder (°)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: cfg.Limits.Elbow.Min, Max: cfg.Limits.Elbow.Max, Name: "Elbow (°)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxReach),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)

	scatter.AddSeries("reach", free, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("collision zone", blocked,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
