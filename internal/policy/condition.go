package policy

import (
	"regexp"
	"strings"
	"time"
)

// TimeLayout is the HH:MM form time conditions compare against.
const TimeLayout = "15:04"

func resolve(c Condition, ctx Context, now time.Time) string {
	if c.ContextKey != "" {
		return ctx.Get(c.ContextKey)
	}
	switch c.Type {
	case TypePath, TypeResource:
		return ctx.Resource()
	case TypeTime:
		return now.Format(TimeLayout)
	default:
		return ctx.Get(string(c.Type))
	}
}

// EvaluateCondition reports whether c holds for ctx at now. It never fails:
// unsupported operator and value combinations and bad regular expressions
// evaluate to false.
func EvaluateCondition(c Condition, ctx Context, now time.Time) bool {
	actual := resolve(c, ctx, now)

	switch c.Operator {
	case OpEquals:
		return !c.Value.IsList() && actual == c.Value.Single()
	case OpStartsWith:
		return anyOf(c.Value, func(v string) bool { return strings.HasPrefix(actual, v) })
	case OpEndsWith:
		return anyOf(c.Value, func(v string) bool { return strings.HasSuffix(actual, v) })
	case OpContains:
		return anyOf(c.Value, func(v string) bool { return strings.Contains(actual, v) })
	case OpRegex:
		pattern := c.Value.Single()
		if c.Value.IsList() {
			pattern = strings.Join(c.Value.Items(), "|")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case OpBetween:
		if c.Type != TypeTime || !c.Value.IsList() {
			return false
		}
		bounds := c.Value.Items()
		if len(bounds) != 2 {
			return false
		}
		// The window is always checked against the clock, never the caller.
		return inWindow(now.Format(TimeLayout), bounds[0], bounds[1])
	default:
		return false
	}
}

func anyOf(v Value, pred func(string) bool) bool {
	if !v.IsList() {
		return pred(v.Single())
	}
	for _, item := range v.Items() {
		if pred(item) {
			return true
		}
	}
	return false
}

// inWindow compares zero padded HH:MM strings. A window whose start is after
// its end wraps past midnight.
func inWindow(now, start, end string) bool {
	if start > end {
		return now >= start || now <= end
	}
	return now >= start && now <= end
}
