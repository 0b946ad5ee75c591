// Package predict runs one form submission end to end: inference, the
// variant's explanation, tracing and the optional audit record.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"cardiorisk/internal/explain"
	"cardiorisk/internal/form"
	"cardiorisk/internal/inference"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/pkg/convert"
	"cardiorisk/internal/pkg/jsonutil"
	"cardiorisk/internal/pkg/text"
	"cardiorisk/internal/store"
)

const maxWarningLen = 300

// RuleSource hands out the widget rules of a variant. Version changes
// whenever the rules do.
type RuleSource interface {
	RulesFor(v form.Variant) form.RuleSet
	Version() int64
}

type cachedValidator struct {
	version   int64
	validator *form.Validator
}

// Outcome is everything a page or API response shows for one prediction.
type Outcome struct {
	ID          string                  `json:"id,omitempty"`
	Variant     form.Variant            `json:"variant"`
	Inputs      map[string]float64      `json:"inputs"`
	Probability float64                 `json:"probability"`
	Percent     string                  `json:"percent"`
	Margin      float64                 `json:"margin"`
	Attribution *explain.Attribution    `json:"attribution,omitempty"`
	Importances []explain.ImportanceRow `json:"importances,omitempty"`
	Warning     string                  `json:"warning,omitempty"`
}

// Deps are the singletons a Service is built from.
type Deps struct {
	Runner     *inference.Runner
	Explainer  explain.Explainer
	Importance explain.ImportanceSource
	Rules      RuleSource
	// Audit is nil unless the audit log is enabled.
	Audit store.PredictionLog
}

// Service is safe for concurrent use. Its dependencies are read-only except
// the rule source, which synchronises itself; compiled validators are cached
// under mu.
type Service struct {
	runner     *inference.Runner
	explainer  explain.Explainer
	importance explain.ImportanceSource
	rules      RuleSource
	audit      store.PredictionLog

	mu         sync.Mutex
	validators map[form.Variant]cachedValidator
}

func NewService(d Deps) (*Service, error) {
	if d.Runner == nil {
		return nil, errors.New("predict service requires a runner")
	}
	if d.Rules == nil {
		d.Rules = form.NewStaticLoader()
	}
	return &Service{
		runner:     d.Runner,
		explainer:  d.Explainer,
		importance: d.Importance,
		rules:      d.Rules,
		audit:      d.Audit,
		validators: make(map[form.Variant]cachedValidator),
	}, nil
}

// Order returns the canonical feature order.
func (s *Service) Order() []string {
	return s.runner.Order()
}

// Widgets builds the inputs of a variant page.
func (s *Service) Widgets(v form.Variant) []form.Widget {
	return s.rules.RulesFor(v).Build(s.runner.Order())
}

// Validator returns the JSON schema validator of a variant's record,
// recompiled only after the rules change.
func (s *Service) Validator(v form.Variant) (*form.Validator, error) {
	version := s.rules.Version()
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.validators[v]; ok && c.version == version {
		return c.validator, nil
	}
	validator, err := form.CompileSchema(s.Widgets(v))
	if err != nil {
		return nil, err
	}
	s.validators[v] = cachedValidator{version: version, validator: validator}
	return validator, nil
}

// AuditEnabled reports whether predictions are persisted.
func (s *Service) AuditEnabled() bool {
	return s.audit != nil
}

// Recent lists audited predictions, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]store.PredictionRecord, error) {
	if s.audit == nil {
		return nil, errors.New("audit log disabled")
	}
	return s.audit.ListRecent(ctx, limit)
}

// Predict scores values. Inference failures are returned; an attribution
// failure only sets Outcome.Warning.
func (s *Service) Predict(ctx context.Context, v form.Variant, values map[string]float64) (Outcome, error) {
	res, err := s.runner.Run(inference.Record(values))
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{
		Variant:     v,
		Inputs:      values,
		Probability: res.Probability,
		Percent:     convert.FormatPercent(res.Probability),
		Margin:      res.Margin,
	}
	switch v {
	case form.VariantDeployment:
		out.Importances = s.importances(res.Row)
	default:
		attr, err := s.explain(res.Row)
		if err != nil {
			out.Warning = text.Truncate(fmt.Sprintf("Unable to compute attribution: %v", err), maxWarningLen)
			logger.Warnf("attribution failed (variant=%s): %v", v, err)
		} else {
			out.Attribution = &attr
		}
	}
	s.trace(out)
	s.record(ctx, &out)
	return out, nil
}

func (s *Service) explain(row []float64) (attr explain.Attribution, err error) {
	if s.explainer == nil {
		return explain.Attribution{}, errors.New("no explainer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("explainer panic: %v", r)
		}
	}()
	return s.explainer.Explain(row)
}

func (s *Service) importances(row []float64) []explain.ImportanceRow {
	order := s.runner.Order()
	values := make(map[string]float64, len(order))
	for i, name := range order {
		if i < len(row) && !math.IsNaN(row[i]) {
			values[name] = row[i]
		}
	}
	if s.importance == nil {
		rows := make([]explain.ImportanceRow, len(order))
		for i, name := range order {
			rows[i] = explain.ImportanceRow{Feature: name, Value: values[name]}
		}
		return rows
	}
	return explain.Importances(s.importance, order, values)
}

func (s *Service) trace(out Outcome) {
	if !logger.TraceEnabled() {
		return
	}
	inputs, _ := json.Marshal(out.Inputs)
	sections := []logger.TraceSection{
		{Title: "INPUTS", Body: jsonutil.Pretty(string(inputs))},
		{Title: "RESULT", Body: fmt.Sprintf("probability=%s margin=%.6f", out.Percent, out.Margin)},
	}
	if detail := explanationJSON(out); len(detail) > 0 {
		sections = append(sections, logger.TraceSection{Title: "EXPLANATION", Body: jsonutil.Pretty(string(detail))})
	}
	if out.Warning != "" {
		sections = append(sections, logger.TraceSection{Title: "WARNING", Body: out.Warning})
	}
	logger.Trace("result", string(out.Variant), sections...)
}

func (s *Service) record(ctx context.Context, out *Outcome) {
	if s.audit == nil {
		return
	}
	rec := &store.PredictionRecord{
		Variant:     string(out.Variant),
		Probability: out.Probability,
		Margin:      out.Margin,
		Inputs:      out.Inputs,
		Explanation: explanationJSON(*out),
		Warning:     out.Warning,
	}
	if err := s.audit.Save(ctx, rec); err != nil {
		logger.Warnf("audit save failed: %v", err)
		return
	}
	out.ID = rec.ID
}

func explanationJSON(out Outcome) json.RawMessage {
	var (
		raw []byte
		err error
	)
	switch {
	case out.Attribution != nil:
		raw, err = json.Marshal(out.Attribution)
	case len(out.Importances) > 0:
		raw, err = json.Marshal(out.Importances)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return raw
}
