package operator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/synqx/core/internal/chunk"
	"github.com/synqx/core/internal/domain"
)

// piiMaskOperator redacts, partially masks, hashes, or regex-substitutes
// configured columns (§4.3 pii_mask). Hashing uses SHA-256, the same
// primitive standardized for pool fingerprints and cache keys (§9.1) rather
// than introducing a second hash algorithm into the dependency surface.
type piiMaskOperator struct {
	IdentityLineage
	columnStrategy map[string]string // column -> redact|partial|hash|regex
	regexRules     map[string]*regexp.Regexp
	regexReplace   map[string]string
}

func newPIIMaskOperator(config map[string]any, _ *domain.PipelineRunContext) (Operator, error) {
	op := &piiMaskOperator{
		columnStrategy: stringMap(config["columns"]),
		regexRules:     make(map[string]*regexp.Regexp),
		regexReplace:   make(map[string]string),
	}

	rawRules, _ := config["regex_rules"].(map[string]any)
	for col, raw := range rawRules {
		rm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		pattern, _ := rm["pattern"].(string)
		replacement, _ := rm["replacement"].(string)
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pii_mask: invalid pattern for column %s: %w", col, err)
		}
		op.regexRules[col] = compiled
		op.regexReplace[col] = replacement
	}
	return op, nil
}

func (p *piiMaskOperator) ValidateConfig() error {
	for col, strategy := range p.columnStrategy {
		switch strategy {
		case "redact", "partial", "hash":
		case "regex":
			if _, ok := p.regexRules[col]; !ok {
				return fmt.Errorf("pii_mask: column %s uses regex strategy but has no regex_rules entry", col)
			}
		default:
			return fmt.Errorf("pii_mask: unsupported strategy %q for column %s", strategy, col)
		}
	}
	return nil
}

func (p *piiMaskOperator) Transform(ctx context.Context, in <-chan chunk.Chunk, out chan<- chunk.Chunk, onChunk chunk.OnChunkFunc) error {
	return forwardAll(ctx, in, out, onChunk, func(c chunk.Chunk) (chunk.Chunk, int, int) {
		rows := make([]chunk.Row, len(c.Rows))
		for i, r := range c.Rows {
			masked := make(chunk.Row, len(r))
			for k, v := range r {
				strategy, ok := p.columnStrategy[k]
				if !ok {
					masked[k] = v
					continue
				}
				masked[k] = p.mask(k, v, strategy)
			}
			rows[i] = masked
		}
		return chunk.Chunk{Columns: c.Columns, Rows: rows}, 0, 0
	})
}

func (p *piiMaskOperator) mask(column string, value any, strategy string) any {
	if value == nil {
		return nil
	}
	s := fmt.Sprint(value)
	switch strategy {
	case "redact":
		return "***"
	case "partial":
		if len(s) <= 4 {
			return "***"
		}
		return s[:2] + "***" + s[len(s)-2:]
	case "hash":
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	case "regex":
		re := p.regexRules[column]
		return re.ReplaceAllString(s, p.regexReplace[column])
	default:
		return value
	}
}
