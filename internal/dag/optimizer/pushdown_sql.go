package optimizer

import (
	"fmt"
	"strconv"
	"strings"
)

// ComposeSQL builds the native query an EXTRACT connector issues once its
// downstream chain has been pushed down, per §4.2's composition rule: wrap a
// bare identifier as `SELECT * FROM <name>`, then wrap each pushed operator
// as a subquery in order.
func ComposeSQL(base string, pushed []PushedOperator) (string, error) {
	query := base
	if isBareIdentifier(base) {
		query = fmt.Sprintf("SELECT * FROM %s", base)
	}

	aliasSeq := map[string]int{}
	for _, op := range pushed {
		switch op.OperatorClass {
		case "filter":
			cond, _ := op.Config["condition"].(string)
			cond = rewriteEquality(cond)
			alias := nextAlias(aliasSeq, "filter_subq")
			query = fmt.Sprintf("SELECT * FROM (%s) AS %s WHERE %s", query, alias, cond)
		case "limit_offset":
			limit, hasLimit := intConfig(op.Config, "limit")
			offset, hasOffset := intConfig(op.Config, "offset")
			alias := nextAlias(aliasSeq, "limit_subq")
			wrapped := fmt.Sprintf("SELECT * FROM (%s) AS %s", query, alias)
			if hasLimit {
				wrapped += " LIMIT " + strconv.Itoa(limit)
			}
			if hasOffset {
				wrapped += " OFFSET " + strconv.Itoa(offset)
			}
			query = wrapped
		default:
			return "", fmt.Errorf("optimizer: operator class %q is not pushdown-composable", op.OperatorClass)
		}
	}
	return query, nil
}

// nextAlias returns base for a class's first occurrence and base_N for its
// Nth (1-indexed) repeat, per §8's literal alias scheme — the sequence is
// keyed per operator class, not by the pushed chain's overall position.
func nextAlias(seq map[string]int, base string) string {
	n := seq[base]
	seq[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

func isBareIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// rewriteEquality rewrites the JS/Python-style `==` token to SQL `=`, per
// §4.2's filter-to-WHERE composition rule.
func rewriteEquality(cond string) string {
	return strings.ReplaceAll(cond, "==", "=")
}

func intConfig(cfg map[string]any, key string) (int, bool) {
	v, ok := cfg[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
