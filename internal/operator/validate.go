package operator

import (
	"context"
	"fmt"
	"regexp"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// validateOperator applies a data contract's rules to each row, routing
// failing rows to a quarantine stream instead of dropping them (§4.3
// validate, Glossary "Quarantine"). Thresholds are evaluated cumulatively
// per chunk against error_threshold_percent — the Polars semantics named
// normative in §9's open-questions resolution, not the source's row-count
// variant.
type validateOperator struct {
	IdentityLineage
	rules             []validateRule
	errorThresholdPct float64
}

type validateRule struct {
	column  string
	check   string // not_null | regex | unique | range
	pattern *regexp.Regexp
	min, max float64
	hasRange bool
}

// QuarantinedRow pairs a failing row with the rule reasons it violated, in
// "column:check" form per scenario S4.
type QuarantinedRow struct {
	Row     chunk.Row
	Reasons []string
}

// ValidationResult is what evaluate returns for one chunk. Transform hands
// the Quarantined rows to onChunk as a DirectionQuarantine chunk, each row
// carrying a __synqx_quarantine_reason__ column; the executor keeps them in
// its quarantine buffer and does not write them to a quarantine asset.
type ValidationResult struct {
	Valid       []chunk.Row
	Quarantined []QuarantinedRow
}

func newValidateOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	v := &validateOperator{errorThresholdPct: 0}
	if pct, ok := config["error_threshold_percent"].(float64); ok {
		v.errorThresholdPct = pct
	} else if pct, ok := config["error_threshold_percent"].(int); ok {
		v.errorThresholdPct = float64(pct)
	}

	rawRules, _ := config["rules"].([]any)
	for _, raw := range rawRules {
		rm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rule := validateRule{
			column: stringOr(rm["col"], ""),
			check:  stringOr(rm["check"], ""),
		}
		if pattern, ok := rm["pattern"].(string); ok && pattern != "" {
			compiled, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("validate: invalid pattern for column %s: %w", rule.column, err)
			}
			rule.pattern = compiled
		}
		if min, ok := toFloat(rm["min"]); ok {
			rule.min = min
			rule.hasRange = true
		}
		if max, ok := toFloat(rm["max"]); ok {
			rule.max = max
			rule.hasRange = true
		}
		v.rules = append(v.rules, rule)
	}
	return v, nil
}

func (v *validateOperator) ValidateConfig() error {
	if len(v.rules) == 0 {
		return fmt.Errorf("validate: at least one rule is required")
	}
	for _, r := range v.rules {
		if r.column == "" || r.check == "" {
			return fmt.Errorf("validate: each rule requires col and check")
		}
	}
	return nil
}

// Transform evaluates every rule against every row, splits the chunk into
// valid and quarantined subsets, forwards only the valid rows downstream,
// and fails the run if the cumulative quarantine rate breaches threshold.
func (v *validateOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	var totalRows, totalBad int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			if onChunk != nil {
				onChunk(c, chunk.DirectionInput, 0, 0)
			}
			if c.Empty() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- c:
				}
				continue
			}

			result := v.evaluate(c)
			totalRows += len(c.Rows)
			totalBad += len(result.Quarantined)

			if totalRows > 0 {
				rate := float64(totalBad) / float64(totalRows) * 100
				if rate > v.errorThresholdPct {
					return fmt.Errorf("validate: quarantine rate %.1f%% exceeds threshold %.1f%%", rate, v.errorThresholdPct)
				}
			}

			if onChunk != nil && len(result.Quarantined) > 0 {
				quarantineRows := make([]chunk.Row, len(result.Quarantined))
				for i, q := range result.Quarantined {
					row := cloneRow(q.Row)
					row["__synqx_quarantine_reason__"] = joinReasons(q.Reasons)
					quarantineRows[i] = row
				}
				onChunk(chunk.Chunk{Columns: c.Columns, Rows: quarantineRows}, chunk.DirectionQuarantine, 0, len(result.Quarantined))
			}

			validChunk := chunk.Chunk{Columns: c.Columns, Rows: result.Valid}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- validChunk:
			}
			if onChunk != nil {
				onChunk(validChunk, chunk.DirectionOutput, len(result.Quarantined), 0)
			}
		}
	}
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ";"
		}
		out += r
	}
	return out
}

func (v *validateOperator) evaluate(c chunk.Chunk) ValidationResult {
	var result ValidationResult
	seen := make(map[int]map[string]bool)
	for _, row := range c.Rows {
		var reasons []string
		for i, rule := range v.rules {
			ok := v.satisfies(rule, row)
			if ok && rule.check == "unique" {
				if seen[i] == nil {
					seen[i] = make(map[string]bool)
				}
				key := fmt.Sprint(row[rule.column])
				ok = !seen[i][key]
				seen[i][key] = true
			}
			if !ok {
				reasons = append(reasons, rule.column+":"+rule.check)
			}
		}
		if len(reasons) == 0 {
			result.Valid = append(result.Valid, row)
		} else {
			result.Quarantined = append(result.Quarantined, QuarantinedRow{Row: row, Reasons: reasons})
		}
	}
	return result
}

func (v *validateOperator) satisfies(rule validateRule, row chunk.Row) bool {
	value, present := row[rule.column]
	switch rule.check {
	case "not_null":
		return present && value != nil
	case "regex":
		if !present || value == nil {
			return true // ownership of missing values belongs to not_null, not regex
		}
		return rule.pattern != nil && rule.pattern.MatchString(fmt.Sprint(value))
	case "range":
		f, ok := toFloat(value)
		if !ok {
			return false
		}
		return rule.hasRange && f >= rule.min && f <= rule.max
	case "unique":
		return true // checked across the chunk in evaluate, not per-row
	default:
		return true
	}
}
