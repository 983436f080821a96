// Package condition implements the restricted Condition Evaluator: a
// boolean/comparison expression language over the session's variables, with
// no access to host capabilities. Any expression that fails to compile,
// fails to evaluate, or does not reduce to a bool is treated as false.
package condition

import (
	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"
)

// Eval evaluates expr against vars and returns its boolean result. It never
// panics and never returns an error to the caller: per the driver's error
// taxonomy, a condition that cannot be resolved simply evaluates to false
// and the session continues down the false branch. The failure is logged.
func Eval(condExpr string, vars map[string]any) bool {
	program, err := expr.Compile(condExpr, expr.Env(vars), expr.AsBool(), expr.DisableAllBuiltins())
	if err != nil {
		log.Warn().Err(err).Str("expr", condExpr).Msg("condition failed to compile, evaluating false")
		return false
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		log.Warn().Err(err).Str("expr", condExpr).Msg("condition failed to evaluate, evaluating false")
		return false
	}

	result, ok := out.(bool)
	if !ok {
		log.Warn().Str("expr", condExpr).Msg("condition did not evaluate to a boolean, evaluating false")
		return false
	}
	return result
}
