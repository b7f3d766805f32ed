// Package scenario drives a reactive runtime from YAML files.
//
// A scenario declares a state tree, the effects, watches and computeds that
// observe it, and a list of steps that mutate the state and check what the
// graph did in response:
//
//	name: deep-watch
//	state:
//	  a: {b: 1}
//	watches:
//	  - {name: w, path: "", deep: true}
//	effects:
//	  - {name: e, reads: [a.b]}
//	computeds:
//	  - {name: c, sum: [a.b]}
//	steps:
//	  - set: {path: a.b, value: 2}
//	  - expect: {fired: {w: 1, e: 2}, computed: {c: 2}}
//
// Paths are dot-separated keys resolved through the observable wrapper, so
// slice elements are addressed by index ("items.0.price"). The empty path is
// the state root. Fired counts are cumulative and include initial runs.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	State       map[string]any `yaml:"state"`
	Effects     []EffectDef   `yaml:"effects,omitempty"`
	Watches     []WatchDef    `yaml:"watches,omitempty"`
	Computeds   []ComputedDef `yaml:"computeds,omitempty"`
	Steps       []Step         `yaml:"steps"`

	// File is the path the scenario was loaded from, if any.
	File string `yaml:"-"`
}

// EffectDef declares an effect that reads the given paths on every run.
type EffectDef struct {
	Name  string   `yaml:"name"`
	Reads []string `yaml:"reads"`

	// Queued defers re-runs to the next flush step.
	Queued bool `yaml:"queued,omitempty"`

	Line int `yaml:"-"`
}

// WatchDef declares a watch on the value at Path.
type WatchDef struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Deep      bool   `yaml:"deep,omitempty"`
	Depth     int    `yaml:"depth,omitempty"`
	Immediate bool   `yaml:"immediate,omitempty"`
	Queued    bool   `yaml:"queued,omitempty"`

	Line int `yaml:"-"`
}

// ComputedDef declares a derived number: either the sum of the numeric
// values at Sum, or the number of keys at Count.
type ComputedDef struct {
	Name  string   `yaml:"name"`
	Sum   []string `yaml:"sum,omitempty"`
	Count string   `yaml:"count,omitempty"`

	Line int `yaml:"-"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Set    *SetOp       `yaml:"set,omitempty"`
	Delete string       `yaml:"delete,omitempty"`
	Stop   string       `yaml:"stop,omitempty"`
	Flush  bool         `yaml:"flush,omitempty"`
	Expect *Expectation `yaml:"expect,omitempty"`

	Line int `yaml:"-"`
}

// SetOp writes Value at Path.
type SetOp struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// Expectation checks the graph after the preceding steps.
type Expectation struct {
	// Fired maps effect and watch names to their cumulative run count.
	Fired map[string]int `yaml:"fired,omitempty"`

	// Computed maps computed names to their current value.
	Computed map[string]float64 `yaml:"computed,omitempty"`

	// State maps paths to their current value.
	State map[string]any `yaml:"state,omitempty"`

	// Subscribers maps paths to the number of effects subscribed to the
	// last key of the path.
	Subscribers map[string]int `yaml:"subscribers,omitempty"`
}

// Kind returns the step's action name.
func (s *Step) Kind() string {
	switch {
	case s.Set != nil:
		return "set"
	case s.Delete != "":
		return "delete"
	case s.Stop != "":
		return "stop"
	case s.Flush:
		return "flush"
	case s.Expect != nil:
		return "expect"
	}
	return ""
}

func (s *Step) count() int {
	n := 0
	for _, set := range []bool{s.Set != nil, s.Delete != "", s.Stop != "", s.Flush, s.Expect != nil} {
		if set {
			n++
		}
	}
	return n
}

// The UnmarshalYAML methods record the source line of each entry.

func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type plain Step
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Line = value.Line
	return nil
}

func (e *EffectDef) UnmarshalYAML(value *yaml.Node) error {
	type plain EffectDef
	if err := value.Decode((*plain)(e)); err != nil {
		return err
	}
	e.Line = value.Line
	return nil
}

func (w *WatchDef) UnmarshalYAML(value *yaml.Node) error {
	type plain WatchDef
	if err := value.Decode((*plain)(w)); err != nil {
		return err
	}
	w.Line = value.Line
	return nil
}

func (c *ComputedDef) UnmarshalYAML(value *yaml.Node) error {
	type plain ComputedDef
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	c.Line = value.Line
	return nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	return parse(data, "")
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerrors.New("R004").WithField("file", path).Wrap(err)
	}
	return parse(data, path)
}

func parse(data []byte, file string) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, rerrors.New("R004").WithLocationFromYAML(file, err).Wrap(err)
	}
	s.File = file
	if s.Name == "" && file != "" {
		s.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if s.State == nil {
		s.State = map[string]any{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks names and step shapes.
func (s *Scenario) Validate() error {
	kinds := make(map[string]string)
	declare := func(kind, name string, line int) error {
		if name == "" {
			return s.invalid(line, "%s without a name", kind)
		}
		if prev, ok := kinds[name]; ok {
			return s.invalid(line, "%s %q is already declared as a %s", kind, name, prev)
		}
		kinds[name] = kind
		return nil
	}

	for _, e := range s.Effects {
		if err := declare("effect", e.Name, e.Line); err != nil {
			return err
		}
	}
	for _, w := range s.Watches {
		if err := declare("watch", w.Name, w.Line); err != nil {
			return err
		}
		if w.Depth < 0 {
			return s.invalid(w.Line, "watch %q has negative depth", w.Name)
		}
	}
	for _, c := range s.Computeds {
		if err := declare("computed", c.Name, c.Line); err != nil {
			return err
		}
		if (len(c.Sum) == 0) == (c.Count == "") {
			return s.invalid(c.Line, "computed %q needs exactly one of sum or count", c.Name)
		}
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		if step.count() != 1 {
			return s.invalid(step.Line, "step %d must have exactly one action", i+1)
		}
		if step.Set != nil && step.Set.Path == "" {
			return s.invalid(step.Line, "set needs a path")
		}
		if step.Stop != "" {
			if _, ok := kinds[step.Stop]; !ok {
				return s.invalid(step.Line, "stop refers to undeclared %q", step.Stop)
			}
		}
		if x := step.Expect; x != nil {
			for _, name := range sortedNames(x.Fired) {
				if k := kinds[name]; k != "effect" && k != "watch" {
					return s.invalid(step.Line, "fired refers to %q, which is not an effect or watch", name)
				}
			}
			for _, name := range sortedNames(x.Computed) {
				if kinds[name] != "computed" {
					return s.invalid(step.Line, "computed refers to undeclared %q", name)
				}
			}
		}
	}
	return nil
}

func (s *Scenario) invalid(line int, format string, args ...any) *rerrors.ReactorError {
	err := rerrors.New("R004").WithDetail(fmt.Sprintf(format, args...))
	if line > 0 {
		err.WithLocation(s.fileName(), line, 0)
	}
	return err
}

func (s *Scenario) fileName() string {
	if s.File == "" {
		return "<scenario>"
	}
	return s.File
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Discover expands directories into the scenario files they contain.
// Files are returned as given; directory entries are sorted.
func Discover(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			out = append(out, filepath.Join(p, e.Name()))
		}
	}
	return out, nil
}
