/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// transformCache caches compiled jq expressions across calls
var transformCache sync.Map // string -> *gojq.Code

// compileTransform parses and compiles a jq expression, caching the result
func compileTransform(expression string) (*gojq.Code, error) {
	if cached, ok := transformCache.Load(expression); ok {
		return cached.(*gojq.Code), nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid transform expression %q: %w", expression, err)
	}

	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transform expression %q: %w", expression, err)
	}

	transformCache.Store(expression, code)
	return code, nil
}

// Transform applies a jq expression to a decoded JSON value and returns the
// transformed value. An expression producing multiple outputs yields an
// array; no output yields nil.
func Transform(expression string, input any) (any, error) {
	code, err := compileTransform(expression)
	if err != nil {
		return nil, err
	}

	var outputs []any
	iter := code.Run(input)
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if iterErr, isErr := value.(error); isErr {
			return nil, fmt.Errorf("transform expression %q failed: %w", expression, iterErr)
		}
		outputs = append(outputs, value)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}
