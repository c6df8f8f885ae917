// Package answers builds the answer policy for assessment questions from
// configured keyword rules and an optional interpreted Go script.
package answers

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kylegalloway/applyflow/internal/config"
	"github.com/kylegalloway/applyflow/internal/stages"
)

const scriptFuncName = "Answer"

// Build chains the configured policies. A script answer wins, then the
// first matching rule, then the default answer.
func Build(cfg config.AssessmentConfig) (stages.Answerer, error) {
	answer := Rules(cfg.Rules, stages.FixedAnswer(cfg.DefaultAnswer))
	if strings.TrimSpace(cfg.Script) == "" {
		return answer, nil
	}
	return LoadScript(cfg.Script, answer)
}

// Rules answers with the first rule whose keyword appears in the question,
// ignoring case. Unmatched questions go to fallback.
func Rules(rules []config.AnswerRule, fallback stages.Answerer) stages.Answerer {
	type rule struct {
		keywords []string
		answer   string
	}
	compiled := make([]rule, 0, len(rules))
	for _, r := range rules {
		var kws []string
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		if len(kws) > 0 && r.Answer != "" {
			compiled = append(compiled, rule{keywords: kws, answer: r.Answer})
		}
	}

	return func(question string) string {
		q := strings.ToLower(question)
		for _, r := range compiled {
			for _, k := range r.keywords {
				if strings.Contains(q, k) {
					return r.answer
				}
			}
		}
		if fallback == nil {
			return ""
		}
		return fallback(question)
	}
}

// LoadScript interprets the Go file at path, which must declare
// func Answer(question string) string in package main. An empty answer or a
// panic inside the script falls back.
func LoadScript(path string, fallback stages.Answerer) (stages.Answerer, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("answers: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("answers: %s is empty", path)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("answers: load stdlib: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("answers: interpret %s: %w", path, err)
	}
	v, err := i.Eval(scriptFuncName)
	if err != nil {
		return nil, fmt.Errorf("answers: %s must define func %s(question string) string: %w", path, scriptFuncName, err)
	}
	fn, err := answerFunc(v)
	if err != nil {
		return nil, fmt.Errorf("answers: %s: %w", path, err)
	}

	// The interpreter is not safe for concurrent calls.
	var mu sync.Mutex
	call := func(question string) (answer string, err error) {
		mu.Lock()
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", scriptFuncName, r)
			}
		}()
		return fn(question), nil
	}

	return func(question string) string {
		if answer, err := call(question); err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if fallback == nil {
			return ""
		}
		return fallback(question)
	}, nil
}

func answerFunc(v reflect.Value) (func(string) string, error) {
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", scriptFuncName)
	}
	if fn, ok := v.Interface().(func(string) string); ok {
		return fn, nil
	}
	t := v.Type()
	if t.NumIn() != 1 || t.In(0).Kind() != reflect.String || t.NumOut() != 1 || t.Out(0).Kind() != reflect.String {
		return nil, fmt.Errorf("%s must have signature func(string) string, got %s", scriptFuncName, t)
	}
	return func(q string) string {
		return v.Call([]reflect.Value{reflect.ValueOf(q)})[0].String()
	}, nil
}
