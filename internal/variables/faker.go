package variables

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

// fakerCallPattern parses `faker.category.method(args?)`.
var fakerCallPattern = regexp.MustCompile(`^faker\.([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)\((.*)\)$`)

var firstNames = []string{"Ava", "Liam", "Noah", "Emma", "Mia", "Oliver", "Sophia", "Lucas", "Isla", "Ethan"}
var lastNames = []string{"Smith", "Johnson", "Brown", "Garcia", "Martinez", "Lee", "Walker", "Young", "Hughes", "Price"}
var words = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}
var domains = []string{"example.com", "test.dev", "mailinator.test", "demo.io"}

// fakerCatalogue is the fixed, allow-listed set of category.method names
// the spec permits (§4.4). There is no general-purpose faker library in
// flowtest's ecosystem reference set, so these generators are hand-rolled
// from math/rand plus google/uuid rather than an unreferenced third-party
// dependency; see DESIGN.md.
var fakerCatalogue = map[string]map[string]func(args []interface{}) interface{}{
	"person": {
		"firstName": func(args []interface{}) interface{} { return pick(firstNames) },
		"lastName":  func(args []interface{}) interface{} { return pick(lastNames) },
		"name":      func(args []interface{}) interface{} { return pick(firstNames) + " " + pick(lastNames) },
	},
	"internet": {
		"email":    func(args []interface{}) interface{} { return strings.ToLower(pick(firstNames)) + "." + strconv.Itoa(rand.Intn(10000)) + "@" + pick(domains) },
		"username": func(args []interface{}) interface{} { return strings.ToLower(pick(firstNames) + pick(lastNames) + strconv.Itoa(rand.Intn(1000))) },
		"url":      func(args []interface{}) interface{} { return "https://" + pick(domains) + "/" + pick(words) },
	},
	"lorem": {
		"word":     func(args []interface{}) interface{} { return pick(words) },
		"sentence": func(args []interface{}) interface{} { return loremSentence(args) },
	},
	"id": {
		"uuid":   func(args []interface{}) interface{} { return uuid.NewString() },
		"number": func(args []interface{}) interface{} { return randomNumber(args) },
	},
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}

func loremSentence(args []interface{}) string {
	count := 6
	if len(args) > 0 {
		if n, ok := toInt(args[0]); ok {
			count = n
		}
	}
	chosen := make([]string, count)
	for i := range chosen {
		chosen[i] = pick(words)
	}
	sentence := strings.Join(chosen, " ")
	return strings.ToUpper(sentence[:1]) + sentence[1:] + "."
}

func randomNumber(args []interface{}) int {
	max := 1000
	if len(args) > 0 {
		if n, ok := toInt(args[0]); ok {
			max = n
		}
	}
	if max <= 0 {
		return 0
	}
	return rand.Intn(max)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// evalFaker parses and evaluates one `faker.category.method(args?)` call.
func evalFaker(expr string) (interface{}, error) {
	m := fakerCallPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, flowtesterrors.NewInterpolationError(expr, expr)
	}

	category, method, rawArgs := m[1], m[2], m[3]

	methods, ok := fakerCatalogue[category]
	if !ok {
		return nil, fmt.Errorf("faker: unknown category %q", category)
	}
	fn, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("faker: unknown method %q in category %q", method, category)
	}

	args, err := parseFakerArgs(rawArgs)
	if err != nil {
		return nil, err
	}

	return fn(args), nil
}

// parseFakerArgs parses a faker call's argument list as JSON, falling back
// to treating the whole string as a single string argument on JSON failure
// (spec §4.4).
func parseFakerArgs(raw string) ([]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var args []interface{}
	if err := json.Unmarshal([]byte("["+raw+"]"), &args); err == nil {
		return args, nil
	}

	return []interface{}{raw}, nil
}
