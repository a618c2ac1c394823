package toolchain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrUnsupportedSpecifier marks PEP 440 clauses that cannot be checked locally.
var ErrUnsupportedSpecifier = errors.New("unsupported version specifier")

// pep440Operators lists PEP 440 comparison operators, longest first.
var pep440Operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// Constraint is a parsed PEP 440 specifier set.
// A version satisfies it when it matches required and none of excluded.
type Constraint struct {
	required goversion.Constraints
	excluded []goversion.Constraints
}

// ParseConstraint converts a PEP 440 specifier set such as ">=6.0,<7",
// "~=6.2" or "==6.*" into go-version constraints. Prefix matches become
// ranges. An empty specifier yields nil.
func ParseConstraint(specifier string) (*Constraint, error) {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return nil, nil
	}

	var (
		c        = new(Constraint)
		required []string
	)

	for _, clause := range strings.Split(specifier, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return nil, fmt.Errorf("parse version constraint %q: empty clause", specifier)
		}

		translated, excluded, err := translateClause(clause)
		if err != nil {
			return nil, fmt.Errorf("parse version constraint %q: %w", specifier, err)
		}

		if excluded != nil {
			c.excluded = append(c.excluded, excluded)

			continue
		}

		required = append(required, translated)
	}

	if len(required) > 0 {
		constraints, err := goversion.NewConstraint(strings.Join(required, ","))
		if err != nil {
			return nil, fmt.Errorf("parse version constraint %q: %w", specifier, err)
		}

		c.required = constraints
	}

	return c, nil
}

// translateClause maps one PEP 440 clause onto go-version syntax. An
// excluded prefix ("!=6.0.*") comes back as the range it must not match.
func translateClause(clause string) (string, goversion.Constraints, error) {
	var operator string

	for _, candidate := range pep440Operators {
		if strings.HasPrefix(clause, candidate) {
			operator = candidate

			break
		}
	}

	version := strings.TrimSpace(strings.TrimPrefix(clause, operator))

	switch {
	case operator == "":
		return "", nil, fmt.Errorf("%w: %q has no comparison operator", ErrUnsupportedSpecifier, clause)
	case operator == "===":
		return "", nil, fmt.Errorf("%w: arbitrary equality %q", ErrUnsupportedSpecifier, clause)
	case version == "":
		return "", nil, fmt.Errorf("%w: %q has no version", ErrUnsupportedSpecifier, clause)
	}

	if prefix, ok := strings.CutSuffix(version, ".*"); ok {
		lower, upper, err := prefixRange(prefix)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedSpecifier, clause, err)
		}

		bounds := ">=" + lower + ",<" + upper

		switch operator {
		case "==":
			return bounds, nil, nil
		case "!=":
			excluded, err := goversion.NewConstraint(bounds)
			if err != nil {
				return "", nil, err
			}

			return "", excluded, nil
		default:
			return "", nil, fmt.Errorf("%w: wildcard is only valid with == and != in %q", ErrUnsupportedSpecifier, clause)
		}
	}

	switch operator {
	case "~=":
		if !strings.Contains(version, ".") {
			return "", nil, fmt.Errorf("%w: %q needs at least two release segments", ErrUnsupportedSpecifier, clause)
		}

		return "~>" + version, nil, nil
	case "==":
		return "=" + version, nil, nil
	default:
		return operator + version, nil, nil
	}
}

// prefixRange returns the half-open range [lower, upper) of versions that
// start with the release prefix, e.g. "6.0" gives "6.0" and "6.1".
func prefixRange(prefix string) (string, string, error) {
	segments := strings.Split(prefix, ".")

	last, err := strconv.Atoi(segments[len(segments)-1])
	if err != nil || last < 0 {
		return "", "", fmt.Errorf("invalid release prefix %q", prefix)
	}

	for _, segment := range segments[:len(segments)-1] {
		if n, convErr := strconv.Atoi(segment); convErr != nil || n < 0 {
			return "", "", fmt.Errorf("invalid release prefix %q", prefix)
		}
	}

	upper := append(append([]string(nil), segments[:len(segments)-1]...), strconv.Itoa(last+1))

	return prefix, strings.Join(upper, "."), nil
}

// Satisfies reports whether installed meets c.
// An empty or unparsable installed version never does; a nil c accepts any version.
func Satisfies(installed string, c *Constraint) bool {
	if installed == "" {
		return false
	}

	v, err := goversion.NewVersion(installed)
	if err != nil {
		return false
	}

	if c == nil {
		return true
	}

	if c.required != nil && !c.required.Check(v) {
		return false
	}

	for _, excluded := range c.excluded {
		if excluded.Check(v) {
			return false
		}
	}

	return true
}

// Requirement renders the installer argument for pkg at specifier, e.g. "pyinstaller>=6.0".
func Requirement(pkg, specifier string) string {
	return pkg + strings.Join(strings.Fields(specifier), "")
}
