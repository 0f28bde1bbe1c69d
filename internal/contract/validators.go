package contract

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"foodonto/internal/artifact"
)

// maxFindingsPerRule caps how many findings one validator reports before
// summarizing the rest.
const maxFindingsPerRule = 25

type findings struct {
	slot  string
	rule  string
	items []string
	extra int
}

func (f *findings) add(format string, args ...any) {
	if len(f.items) >= maxFindingsPerRule {
		f.extra++
		return
	}
	f.items = append(f.items, fmt.Sprintf("%s: %s: ", f.slot, f.rule)+fmt.Sprintf(format, args...))
}

func (f *findings) flush() []string {
	if f.extra > 0 {
		f.items = append(f.items, fmt.Sprintf("%s: %s: %d more findings suppressed", f.slot, f.rule, f.extra))
	}
	return f.items
}

// checkArtifact runs every validator of rule against the slot's content.
func checkArtifact(store artifact.Store, rule ArtifactRule) []string {
	slot, _ := artifact.ByName(rule.Slot)
	rs := loadRows(store, slot, rule.Format)
	if !rs.present {
		if rule.Required {
			return []string{fmt.Sprintf("%s: required artifact missing at %s", rule.Slot, store.Location(slot))}
		}
		return nil
	}
	errs := append([]string(nil), rs.errs...)

	if len(rs.rows) < rule.MinRows {
		errs = append(errs, fmt.Sprintf("%s: min_rows: expected at least %d rows, got %d", rule.Slot, rule.MinRows, len(rs.rows)))
	}
	if len(rule.RequiredFields) > 0 {
		errs = append(errs, requiredFields(rule, rs)...)
	}
	for _, keys := range rule.Unique {
		errs = append(errs, unique(rule.Slot, keys, rs)...)
	}
	if len(rule.SortedBy) > 0 {
		errs = append(errs, sortedBy(rule.Slot, rule.SortedBy, rs)...)
	}
	for _, e := range rule.Expr {
		errs = append(errs, evalExpr(rule.Slot, e, rs)...)
	}
	return errs
}

func requiredFields(rule ArtifactRule, rs rowSet) []string {
	f := findings{slot: rule.Slot, rule: "required_fields"}
	for i, row := range rs.rows {
		var missing []string
		for _, field := range rule.RequiredFields {
			if _, ok := row[field]; !ok {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			f.add("row %d missing %s", rs.lines[i], strings.Join(missing, ", "))
		}
	}
	return f.flush()
}

func unique(slot string, keys []string, rs rowSet) []string {
	f := findings{slot: slot, rule: "unique(" + strings.Join(keys, ",") + ")"}
	seen := make(map[string]int, len(rs.rows))
	for i, row := range rs.rows {
		k, ok := keyOf(row, keys)
		if !ok {
			continue
		}
		if first, dup := seen[k]; dup {
			f.add("row %d duplicates row %d", rs.lines[i], first)
			continue
		}
		seen[k] = rs.lines[i]
	}
	return f.flush()
}

func sortedBy(slot string, keys []string, rs rowSet) []string {
	f := findings{slot: slot, rule: "sorted_by(" + strings.Join(keys, ",") + ")"}
	for i := 1; i < len(rs.rows); i++ {
		prev, cur := rs.rows[i-1], rs.rows[i]
		for _, k := range keys {
			c := compareValues(prev[k], cur[k])
			if c < 0 {
				break
			}
			if c > 0 {
				f.add("row %d sorts before row %d", rs.lines[i], rs.lines[i-1])
				break
			}
		}
	}
	return f.flush()
}

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)))
}

func evalExpr(slot string, e ExprRule, rs rowSet) []string {
	name := e.Name
	if name == "" {
		name = e.Rule
	}
	f := findings{slot: slot, rule: "expr " + name}

	env, err := newCELEnv()
	if err != nil {
		f.add("environment: %v", err)
		return f.flush()
	}
	ast, iss := env.Compile(e.Rule)
	if iss != nil && iss.Err() != nil {
		f.add("compile: %v", iss.Err())
		return f.flush()
	}
	prg, err := env.Program(ast)
	if err != nil {
		f.add("program: %v", err)
		return f.flush()
	}

	for i, row := range rs.rows {
		out, _, err := prg.Eval(map[string]any{"row": celValue(row)})
		if err != nil {
			f.add("row %d: %v", rs.lines[i], err)
			continue
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			f.add("row %d: expression yields %T, not bool", rs.lines[i], out.Value())
			continue
		}
		if !ok {
			f.add("row %d violates %s", rs.lines[i], e.Rule)
		}
	}
	return f.flush()
}
