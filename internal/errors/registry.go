package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

const docBase = "https://vango.dev/docs/reactor/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	"R001": {
		Category:   CategoryRuntime,
		Message:    "Write to read-only computed",
		Detail:     "The computed was created without a setter, so writes to it are dropped.",
		Suggestion: "Create it with NewWritableComputed, or write to the values it derives from.",
		DocURL:     docBase + "R001",
	},
	"R002": {
		Category:   CategoryScheduler,
		Message:    "Flush budget exceeded",
		Detail:     "A single flush ran more jobs than allowed. Jobs that keep re-queueing each other usually mean two effects write to values the other reads.",
		Suggestion: "Break the write cycle, or raise scheduler.maxJobsPerFlush.",
		DocURL:     docBase + "R002",
	},
	"R003": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Detail:     "The configuration file could not be parsed or contains out-of-range values.",
		DocURL:     docBase + "R003",
	},
	"R004": {
		Category:   CategoryScenario,
		Message:    "Invalid scenario",
		Detail:     "The scenario file could not be parsed or refers to undeclared names.",
		DocURL:     docBase + "R004",
	},
	"R005": {
		Category: CategoryScenario,
		Message:  "Expectation failed",
		Detail:   "A step's expected value did not match what the reactive graph produced.",
		DocURL:   docBase + "R005",
	},
	"R006": {
		Category:   CategoryScenario,
		Message:    "Unknown state path",
		Detail:     "A dot path in the scenario does not resolve to a value in the state tree.",
		Suggestion: "Paths start at the state root, e.g. user.name or items.0.",
		DocURL:     docBase + "R006",
	},
	"R007": {
		Category: CategoryInspector,
		Message:  "Inspector server failed",
		Detail:   "The inspector HTTP server could not start or stopped with an error.",
		DocURL:   docBase + "R007",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
