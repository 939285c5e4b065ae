package market

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

// ErrNoHistory is returned when there is nothing to plot for the requested window.
var ErrNoHistory = errors.New("no price history")

// RenderHistoryChart plots the average price of each commodity group over the
// given stored snapshots and returns the PNG bytes. It is a pure function of
// already-fetched records; it performs no I/O.
func RenderHistoryChart(records []GroupSnapshot, days int) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoHistory
	}

	type line struct {
		xs []time.Time
		ys []float64
	}
	byGroup := map[string]*line{}
	for _, r := range records {
		l := byGroup[r.Group]
		if l == nil {
			l = &line{}
			byGroup[r.Group] = l
		}
		l.xs = append(l.xs, r.CapturedAt)
		l.ys = append(l.ys, r.Avg.InexactFloat64())
	}

	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]chart.Series, 0, len(names))
	for i, name := range names {
		l := byGroup[name]
		c := chart.GetDefaultColor(i)
		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: l.xs,
			YValues: l.ys,
			Style: chart.Style{
				StrokeColor: c,
				DotColor:    c,
				DotWidth:    3,
			},
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Son %d Günün Fiyat Grafiği", days),
		Width:  1200,
		Height: 800,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("02/01"),
		},
		YAxis: chart.YAxis{
			Name: "Ortalama Fiyat (TL)",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
