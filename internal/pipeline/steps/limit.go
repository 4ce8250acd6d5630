// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package steps

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// DefaultCoreLimit bounds how many core files the model may pick, as a
// function of the number of fetched files.
const DefaultCoreLimit = "min(20, files / 2)"

var limitFuncs = map[string]govaluate.ExpressionFunction{
	"min": func(args ...any) (any, error) {
		return fold(args, math.Min)
	},
	"max": func(args ...any) (any, error) {
		return fold(args, math.Max)
	},
}

func fold(args []any, fn func(a, b float64) float64) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expects at least one argument")
	}
	var acc float64
	for i, a := range args {
		f, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("argument %d is %T, not a number", i, a)
		}
		if i == 0 {
			acc = f
			continue
		}
		acc = fn(acc, f)
	}
	return acc, nil
}

// CoreLimit is a compiled core file limit expression. The expression sees
// the variable files and the functions min and max.
type CoreLimit struct {
	expr *govaluate.EvaluableExpression
}

// ParseCoreLimit compiles expr, DefaultCoreLimit when empty.
func ParseCoreLimit(expr string) (*CoreLimit, error) {
	if expr == "" {
		expr = DefaultCoreLimit
	}
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, limitFuncs)
	if err != nil {
		return nil, fmt.Errorf("core limit %q: %w", expr, err)
	}
	for _, v := range e.Vars() {
		if v != "files" {
			return nil, fmt.Errorf("core limit %q: unknown variable %q", expr, v)
		}
	}
	return &CoreLimit{expr: e}, nil
}

// Eval returns the limit for n files, rounded down and at least 1.
func (c *CoreLimit) Eval(n int) (int, error) {
	v, err := c.expr.Evaluate(map[string]any{"files": float64(n)})
	if err != nil {
		return 0, fmt.Errorf("core limit %q: %w", c.expr.String(), err)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("core limit %q yields %T, not a number", c.expr.String(), v)
	}
	return max(1, int(math.Floor(f))), nil
}
