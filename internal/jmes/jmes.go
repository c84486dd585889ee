// Package jmes wraps go-jmespath for flowtest's capture engine (spec §4.4)
// and assertion engine (spec §4.5). Neither the teacher nor any other
// example repo in the retrieval pack uses JMESPath; it is adopted directly
// because the specification names JMESPath extraction as a hard requirement
// (see DESIGN.md for the out-of-pack-dependency justification).
package jmes

import (
	"sync"

	"github.com/jmespath/go-jmespath"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*jmespath.JMESPath)
)

// Search compiles (and caches) expr, then evaluates it against data.
func Search(expr string, data interface{}) (interface{}, error) {
	compiled, err := compile(expr)
	if err != nil {
		return nil, flowtesterrors.NewJmesEvalError(expr, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, flowtesterrors.NewJmesEvalError(expr, err)
	}
	return result, nil
}

func compile(expr string) (*jmespath.JMESPath, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if compiled, ok := cache[expr]; ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, err
	}
	cache[expr] = compiled
	return compiled, nil
}
