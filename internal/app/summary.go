package app

import (
	"fmt"
	"io"
	"strings"

	"cardiorisk/internal/config"
	"cardiorisk/internal/form"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/predict"
)

type StartupSummary struct {
	Model     ModelSummary
	Widgets   map[form.Variant][]form.Widget
	Unmatched []string
	RulesFrom string
	HTTPAddr  string
	PNG       bool
	Audit     string
	Trace     string
}

type ModelSummary struct {
	Path      string
	Kind      string
	Objective string
	Version   string
	Trees     int
	Features  []string
	Imputed   int
}

func buildSummary(cfg *config.Config, arts *Artifacts, imputer *inference.MeanImputer, svc *predict.Service, rules *form.RuleLoader) *StartupSummary {
	v := arts.Booster.Version()
	s := &StartupSummary{
		Model: ModelSummary{
			Path:      cfg.Model.Path,
			Kind:      string(arts.Booster.Kind()),
			Objective: arts.Booster.Objective(),
			Version:   fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]),
			Trees:     arts.Booster.NumTrees(),
			Features:  append([]string(nil), arts.Order...),
			Imputed:   imputer.Known(),
		},
		Widgets: map[form.Variant][]form.Widget{
			form.VariantFull:       svc.Widgets(form.VariantFull),
			form.VariantDeployment: svc.Widgets(form.VariantDeployment),
		},
		RulesFrom: rules.Snapshot().Source,
		HTTPAddr:  cfg.App.HTTPAddr,
		PNG:       cfg.Render.PNGEnabled,
	}
	s.Unmatched = form.Unmatched(s.Widgets[form.VariantFull])
	if cfg.Audit.Enabled {
		s.Audit = cfg.Audit.Path
	}
	if cfg.App.TracePredictions {
		s.Trace = cfg.App.TracePath
	}
	return s
}

// Print logs the summary line by line so it also reaches the log file.
func (s *StartupSummary) Print() {
	var b strings.Builder
	s.Fprint(&b)
	logger.InfoBlock(b.String())
}

func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	title := "STARTUP SUMMARY"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[MODEL]")
	fmt.Fprintf(w, "  File:      %s\n", s.Model.Path)
	fmt.Fprintf(w, "  Booster:   %s (%s), xgboost %s\n", s.Model.Kind, s.Model.Objective, s.Model.Version)
	fmt.Fprintf(w, "  Trees:     %d\n", s.Model.Trees)
	fmt.Fprintf(w, "  Features:  %s\n", formatList(s.Model.Features))
	fmt.Fprintf(w, "  Means:     %d features\n", s.Model.Imputed)
	fmt.Fprintln(w)

	for _, v := range []form.Variant{form.VariantFull, form.VariantDeployment} {
		fmt.Fprintf(w, "[WIDGETS %s]\n", strings.ToUpper(string(v)))
		widgets := s.Widgets[v]
		if len(widgets) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, wd := range widgets {
			mark := ""
			if wd.Unmatched {
				mark = "  <- fallback"
			}
			fmt.Fprintf(w, "  - %-20s %-28s [%g, %g] default %g%s\n", wd.Feature, wd.Label, wd.Min, wd.Max, wd.Default, mark)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "[SERVICE]")
	fmt.Fprintf(w, "  HTTP:      %s\n", s.HTTPAddr)
	fmt.Fprintf(w, "  Rules:     %s\n", s.RulesFrom)
	fmt.Fprintf(w, "  Unmatched: %s\n", formatList(s.Unmatched))
	fmt.Fprintf(w, "  PNG:       %t\n", s.PNG)
	fmt.Fprintf(w, "  Audit:     %s\n", orDash(s.Audit))
	fmt.Fprintf(w, "  Trace:     %s\n", orDash(s.Trace))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
