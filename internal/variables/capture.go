package variables

import (
	"github.com/alexisbeaulieu97/flowtest/internal/jmes"
)

// Capture runs each capture entry's JMESPath expression against ctxObject
// and installs the result into the runtime scope. Extraction errors are
// logged by the caller and set that variable to nil; other captures proceed
// (spec §4.4).
func (c *Context) Capture(entries map[string]string, ctxObject map[string]interface{}) (captured map[string]interface{}, warnings []error) {
	if len(entries) == 0 {
		return nil, nil
	}

	captured = make(map[string]interface{}, len(entries))
	for name, expr := range entries {
		value, err := jmes.Search(expr, ctxObject)
		if err != nil {
			warnings = append(warnings, err)
			captured[name] = nil
			c.Set(name, nil)
			continue
		}
		captured[name] = value
		c.Set(name, value)
	}
	return captured, warnings
}
