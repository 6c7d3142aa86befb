// Package rules compiles boolean CEL expressions into group predicates.
package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/explorer/internal/analytics"
	"github.com/opensource-finance/explorer/internal/domain"
)

// DefaultMaxPrograms bounds the compiled program memo.
const DefaultMaxPrograms = 256

// Engine compiles filter expressions against the group metric variables.
//
// Available variables:
//
//	group_id, display_name                      string
//	member_count, transaction_count             int
//	unique_counterparties, risk_score           int
//	total_amount, outgoing_ratio                double
//	reported                                    bool
//	canonical                                   map(string, dyn)
type Engine struct {
	mu          sync.RWMutex
	env         *cel.Env
	programs    map[string]cel.Program
	order       []string
	maxPrograms int
}

// NewEngine creates an engine that memoizes up to maxPrograms compiled
// expressions. A non-positive value uses DefaultMaxPrograms.
func NewEngine(maxPrograms int) (*Engine, error) {
	if maxPrograms <= 0 {
		maxPrograms = DefaultMaxPrograms
	}

	env, err := cel.NewEnv(
		cel.Variable("group_id", cel.StringType),
		cel.Variable("display_name", cel.StringType),
		cel.Variable("member_count", cel.IntType),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("unique_counterparties", cel.IntType),
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("outgoing_ratio", cel.DoubleType),
		cel.Variable("reported", cel.BoolType),
		cel.Variable("canonical", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:         env,
		programs:    make(map[string]cel.Program),
		maxPrograms: maxPrograms,
	}, nil
}

// Validate compiles an expression without returning a predicate.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Compile turns an expression into a predicate. Expressions that fail to
// compile or do not yield a bool wrap domain.ErrInvalidInput. At evaluation
// time an error or a non-bool result counts as a non-match.
func (e *Engine) Compile(expr string) (analytics.Predicate, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	return func(g *domain.EnrichedGroup, reported bool) bool {
		out, _, err := prg.Eval(Activation(g, reported))
		if err != nil {
			return false
		}
		b, ok := out.(types.Bool)
		return ok && bool(b)
	}, nil
}

// Count returns the number of memoized programs.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Close drops every memoized program.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]cel.Program)
	e.order = nil
	return nil
}

// Activation builds the variable bindings for one group.
func Activation(g *domain.EnrichedGroup, reported bool) map[string]any {
	m := g.Metrics
	canonical := g.Group.CanonicalAttributes
	if canonical == nil {
		canonical = map[string]any{}
	}
	return map[string]any{
		"group_id":              g.ID(),
		"display_name":          g.DisplayName,
		"member_count":          int64(m.MemberCount),
		"transaction_count":     int64(m.TransactionCount),
		"unique_counterparties": int64(m.UniqueCounterparties),
		"risk_score":            int64(m.RiskScore),
		"total_amount":          m.TotalAmount,
		"outgoing_ratio":        m.OutgoingRatio,
		"reported":              reported,
		"canonical":             canonical,
	}
}

func (e *Engine) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile expression: %v", domain.ErrInvalidInput, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DynType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidInput, outputType)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create program: %v", domain.ErrInvalidInput, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.programs[expr]; !exists {
		if len(e.order) >= e.maxPrograms {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.programs, oldest)
		}
		e.programs[expr] = prg
		e.order = append(e.order, expr)
	}
	return prg, nil
}
