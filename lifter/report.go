package lifter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

// DiffStates compares two processor states and returns an ASCII diff of
// their JSON forms. The diff is empty when the states match.
func DiffStates(expected, actual arm.State, coloring bool) (string, error) {
	expJSON, err := json.Marshal(expected)
	if err != nil {
		return "", err
	}
	actJSON, err := json.Marshal(actual)
	if err != nil {
		return "", err
	}
	delta, err := gojsondiff.New().Compare(expJSON, actJSON)
	if err != nil {
		return "", fmt.Errorf("diffing states: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}
	var left interface{}
	if err := json.Unmarshal(expJSON, &left); err != nil {
		return "", err
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	return formatter.NewAsciiFormatter(left, cfg).Format(delta)
}

// CFGChart builds a force-directed graph of the blocks of fn. Translation
// units are green, blocks that leave translated code red and predicated
// blocks grey.
func CFGChart(fn *ir.Function, cache *Cache) *charts.Graph {
	units := make(map[*ir.Block]*Unit)
	if cache != nil {
		for _, u := range cache.Units() {
			units[u.Head] = u
		}
	}

	nodes := make([]opts.GraphNode, 0, len(fn.Blocks))
	links := make([]opts.GraphLink, 0)
	for _, b := range fn.Blocks {
		color := "grey"
		tip := fmt.Sprintf("%s<br>%d instructions", b.Name, len(b.Instrs))
		if u, ok := units[b]; ok {
			color = "green"
			tip += fmt.Sprintf("<br>%s, %d edges", u.Mode, u.Edges)
		}
		if term := b.Terminator(); term != nil && term.Op == ir.OpRet {
			color = "red"
		}
		nodes = append(nodes, opts.GraphNode{
			Name:  b.Name,
			Value: float32(len(b.Instrs)),
			Tooltip: &opts.Tooltip{
				Show:      opts.Bool(true),
				Formatter: types.FuncStr(tip),
			},
			ItemStyle: &opts.ItemStyle{Color: color},
		})
		for _, s := range b.Succs() {
			links = append(links, opts.GraphLink{Source: b.Name, Target: s.Name})
		}
	}

	g := charts.NewGraph()
	g.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fn.Name,
			Subtitle: fmt.Sprintf("%d blocks", len(fn.Blocks)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	g.AddSeries("cfg", nodes, links).SetSeriesOptions(
		charts.WithGraphChartOpts(opts.GraphChart{
			Force:  &opts.GraphForce{Repulsion: 1000, Gravity: 0.3},
			Layout: "force",
			Roam:   opts.Bool(true),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{b}"}),
	)
	return g
}

// RenderCFG writes an HTML page with the CFG chart of fn.
func RenderCFG(w io.Writer, fn *ir.Function, cache *Cache) error {
	page := components.NewPage()
	page.AddCharts(CFGChart(fn, cache))
	return page.Render(w)
}
