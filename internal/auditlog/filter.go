package auditlog

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jaakkos/auditwatch/internal/domain"
)

// Filter is a compiled boolean expression over AuditEntry fields, e.g.
//
//	Environment == "production" && Author contains "ops"
type Filter struct {
	source  string
	program *vm.Program
}

// CompileFilter compiles src. An empty src yields a filter matching everything.
func CompileFilter(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(src, expr.Env(domain.AuditEntry{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{source: src, program: program}, nil
}

// String returns the filter source.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match reports whether e satisfies the filter. A nil filter matches everything.
func (f *Filter) Match(e domain.AuditEntry) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, e)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.source, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// FilterEntries returns the entries matching f, preserving order.
func FilterEntries(f *Filter, entries []domain.AuditEntry) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		ok, err := f.Match(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}
