// Package visual draws attribution and importance charts with go-echarts and
// optionally rasterises them through headless Chrome.
package visual

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"cardiorisk/internal/explain"
	"cardiorisk/internal/pkg/convert"
)

const (
	AttributionTitle = "Biomarkers attribution (%)"
	ImportanceTitle  = "Gain importance"

	colorBar           = "#008080"
	colorZeroLine      = "#808080"
	colorTextPrimary   = "#1f2937"
	colorTextSecondary = "#6b7280"

	chartWidthPx  = 700
	chartHeightPx = 400
)

// Chart is a bar chart plus the category labels it was built from.
type Chart struct {
	*charts.Bar
	Labels []string
	Values []float64
	Width  int
	Height int
}

// Snippet is a chart ready to be embedded into an HTML page.
type Snippet struct {
	Element template.HTML
	Script  template.HTML
	Assets  []string
}

func initOpts(title string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: "#ffffff",
			PageTitle:       title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Left:       "center",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 16},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Left: "3%", Right: "6%", ContainLabel: opts.Bool(true)}),
	}
}

// AttributionChart draws one horizontal bar per feature, in the order of the
// attribution, with a dashed reference line at zero.
func AttributionChart(attr explain.Attribution) *Chart {
	labels, data, values := attributionSeries(attr)
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(initOpts(AttributionTitle),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "value",
			Name:      "%",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextPrimary},
		}),
	)...)
	bar.SetXAxis(labels)
	bar.AddSeries("Contribution (%)", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBar}),
		charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "baseline", XAxis: 0}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			Label:     &opts.Label{Show: opts.Bool(false)},
			LineStyle: &opts.LineStyle{Color: colorZeroLine, Type: "dashed", Width: 1},
		}),
	)
	bar.XYReversal()
	return &Chart{Bar: bar, Labels: labels, Values: values, Width: chartWidthPx, Height: chartHeightPx}
}

func attributionSeries(attr explain.Attribution) ([]string, []opts.BarData, []float64) {
	labels := make([]string, len(attr.Contributions))
	data := make([]opts.BarData, len(attr.Contributions))
	values := make([]float64, len(attr.Contributions))
	for i, c := range attr.Contributions {
		labels[i] = c.Feature
		values[i] = c.Percent
		data[i] = opts.BarData{Name: c.Feature, Value: convert.RoundFloat(c.Percent, 4)}
	}
	return labels, data, values
}

// ImportanceChart draws vertical bars of gain importance in feature order.
func ImportanceChart(rows []explain.ImportanceRow) *Chart {
	labels := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		labels[i] = r.Feature
		values[i] = r.Importance
		data[i] = opts.BarData{Name: r.Feature, Value: convert.RoundFloat(r.Importance, 4)}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(initOpts(ImportanceTitle),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextPrimary, Interval: "0"},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "value",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)...)
	bar.SetXAxis(labels)
	bar.AddSeries("Importance", data, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBar}))
	return &Chart{Bar: bar, Labels: labels, Values: values, Width: chartWidthPx, Height: chartHeightPx}
}

// RenderHTML renders a standalone page holding the chart.
func RenderHTML(c *Chart) ([]byte, error) {
	if c == nil || c.Bar == nil {
		return nil, fmt.Errorf("chart required")
	}
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Embed renders the chart element and its init script for a host page.
func Embed(c *Chart) Snippet {
	if c == nil || c.Bar == nil {
		return Snippet{}
	}
	s := c.RenderSnippet()
	assets := append([]string(nil), c.JSAssets.Values...)
	return Snippet{
		Element: template.HTML(s.Element),
		Script:  template.HTML(s.Script),
		Assets:  assets,
	}
}
