package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BrowserStep is one interaction performed against the shared browser session
type BrowserStep struct {
	Action   string `json:"action" yaml:"action"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Contains string `json:"contains,omitempty" yaml:"contains,omitempty"`
	Timeout  int    `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds
}

// TestCase is a named sequence of browser steps
type TestCase struct {
	Name     string        `json:"name" yaml:"name"`
	Skip     string        `json:"skip,omitempty" yaml:"skip,omitempty"` // reason; non-empty skips the case
	Params   []string      `json:"params,omitempty" yaml:"params,omitempty"`
	Setup    []BrowserStep `json:"setup,omitempty" yaml:"setup,omitempty"`
	Steps    []BrowserStep `json:"steps" yaml:"steps"`
	Teardown []BrowserStep `json:"teardown,omitempty" yaml:"teardown,omitempty"`
}

// Suite is a file of test cases run sequentially against one browser session
type Suite struct {
	Name    string     `json:"name" yaml:"name"`
	BaseURL string     `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Tests   []TestCase `json:"tests" yaml:"tests"`

	// Module is the suite path used as the identity prefix, e.g. "tests/login.suite.json"
	Module string `json:"-" yaml:"-"`
}

// PlannedTest is one invocation of a test case with its identity resolved
type PlannedTest struct {
	Identity string
	Case     TestCase
	Param    string
}

var knownActions = map[string]bool{
	"navigate":         true,
	"click":            true,
	"type":             true,
	"waitFor":          true,
	"assertVisible":    true,
	"assertText":       true,
	"assertNotVisible": true,
	"submit":           true,
	"wait":             true,
}

// LoadSuite reads a JSON or YAML suite. Module is the path relative to projectRoot.
func LoadSuite(path, projectRoot string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("suite not found: %s\n\nRun 'failshot init' to create one", path)
		}
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}

	var suite Suite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &suite); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(data, &suite); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", filepath.Base(path), err)
		}
	}

	suite.Module = filepath.ToSlash(path)
	if rel, err := filepath.Rel(projectRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
		suite.Module = filepath.ToSlash(rel)
	}

	if err := validateSuite(&suite); err != nil {
		return nil, err
	}
	return &suite, nil
}

func validateSuite(suite *Suite) error {
	if len(suite.Tests) == 0 {
		return fmt.Errorf("tests must have at least one test")
	}

	names := make(map[string]bool)
	for i, tc := range suite.Tests {
		if tc.Name == "" {
			return fmt.Errorf("tests[%d]: missing name", i)
		}
		if strings.ContainsAny(tc.Name, "[]") {
			return fmt.Errorf("tests[%d]: name %q must not contain brackets", i, tc.Name)
		}
		if names[tc.Name] {
			return fmt.Errorf("tests[%d]: duplicate name %q", i, tc.Name)
		}
		names[tc.Name] = true

		if len(tc.Steps) == 0 {
			return fmt.Errorf("tests[%d] (%s): steps must have at least one step", i, tc.Name)
		}
		params := make(map[string]bool)
		for _, p := range tc.Params {
			if params[p] {
				return fmt.Errorf("tests[%d] (%s): duplicate param %q", i, tc.Name, p)
			}
			params[p] = true
		}
		for _, group := range [][]BrowserStep{tc.Setup, tc.Steps, tc.Teardown} {
			for j, step := range group {
				if !knownActions[step.Action] {
					return fmt.Errorf("tests[%d] (%s) step %d: unknown action %q", i, tc.Name, j, step.Action)
				}
			}
		}
	}
	return nil
}

// Plan expands parametrized cases into individual invocations in file order.
// Identities follow the "module::name[param]" form.
func (s *Suite) Plan() []PlannedTest {
	var planned []PlannedTest
	for _, tc := range s.Tests {
		base := s.Module + "::" + tc.Name
		if len(tc.Params) == 0 {
			planned = append(planned, PlannedTest{Identity: base, Case: tc})
			continue
		}
		for _, p := range tc.Params {
			planned = append(planned, PlannedTest{
				Identity: base + "[" + p + "]",
				Case:     tc.withParam(p),
				Param:    p,
			})
		}
	}
	return planned
}

// withParam substitutes {param} in every step field
func (tc TestCase) withParam(p string) TestCase {
	sub := func(steps []BrowserStep) []BrowserStep {
		out := make([]BrowserStep, len(steps))
		for i, st := range steps {
			st.URL = strings.ReplaceAll(st.URL, "{param}", p)
			st.Selector = strings.ReplaceAll(st.Selector, "{param}", p)
			st.Value = strings.ReplaceAll(st.Value, "{param}", p)
			st.Contains = strings.ReplaceAll(st.Contains, "{param}", p)
			out[i] = st
		}
		return out
	}
	tc.Setup = sub(tc.Setup)
	tc.Steps = sub(tc.Steps)
	tc.Teardown = sub(tc.Teardown)
	return tc
}

// WriteExampleSuite writes a starter suite
func WriteExampleSuite(path string) error {
	suite := Suite{
		Name: "smoke",
		Tests: []TestCase{
			{
				Name: "test_home_loads",
				Steps: []BrowserStep{
					{Action: "navigate", URL: "/"},
					{Action: "assertVisible", Selector: "body"},
				},
			},
			{
				Name:   "test_pages_render",
				Params: []string{"about", "contact"},
				Steps: []BrowserStep{
					{Action: "navigate", URL: "/{param}"},
					{Action: "assertVisible", Selector: "main"},
				},
			},
		},
	}
	return AtomicWriteJSON(path, suite)
}
