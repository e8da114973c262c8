package topology

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid topology: " + strings.Join(e.Problems, "; ")
}

// Validate checks field constraints, duplicate channel names, passthrough
// targets and passthrough cycles. A cycle would make a firing recurse
// forever, so it is rejected here rather than at fire time.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"config is empty"}}
	}

	var problems []string

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	names := cfg.ChannelNames()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name != "" && seen[name] {
			problems = append(problems, fmt.Sprintf("channel %q declared more than once", name))
		}
		seen[name] = true
	}

	edges := make(map[string][]string)
	for _, ch := range cfg.Channels {
		for _, l := range ch.Listeners {
			if l.kind() != KindPassthrough || l.To == "" {
				continue
			}
			if !doublestar.ValidatePattern(l.To) {
				problems = append(problems, fmt.Sprintf("channel %q: bad passthrough pattern %q", ch.Name, l.To))
				continue
			}
			targets := matchNames(l.To, names)
			if len(targets) == 0 {
				problems = append(problems, fmt.Sprintf("channel %q: passthrough %q matches no channel%s",
					ch.Name, l.To, suggest(l.To, names)))
				continue
			}
			edges[ch.Name] = append(edges[ch.Name], targets...)
		}
	}

	if cycle := findCycle(names, edges); cycle != nil {
		problems = append(problems, "passthrough cycle: "+strings.Join(cycle, " -> "))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return field + " is required for passthrough listeners"
	case "required_unless":
		return field + " is required unless the listener is a passthrough"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

// matchNames returns the names matching pattern, in the order given.
func matchNames(pattern string, names []string) []string {
	var out []string
	for _, name := range names {
		if ok, _ := doublestar.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	return out
}

// suggest returns a " (did you mean ...)" hint for the closest candidate, or
// an empty string when nothing is close.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" || bestDist > max(2, len(name)/3) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

// findCycle returns the first passthrough cycle found, as a path that starts
// and ends at the same channel, or nil.
func findCycle(names []string, edges map[string][]string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, next := range edges[n] {
			switch state[next] {
			case visiting:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						break
					}
				}
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, n := range names {
		if state[n] == unvisited && visit(n) {
			return cycle
		}
	}
	return nil
}
