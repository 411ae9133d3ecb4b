package forgewire

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Errors maps field names to validation messages. Validation failures are
// not fatal: they are rendered by the component's own template.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Has reports whether field has any message.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// First returns the first message for field, or "".
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Any reports whether there is at least one message.
func (e Errors) Any() bool {
	for _, msgs := range e {
		if len(msgs) > 0 {
			return true
		}
	}
	return false
}

var validate = validator.New()

// ruleKinds lists the field kinds each rule can check. The validator panics
// on some other combinations, so they are refused at definition time.
var ruleKinds = map[string][]Kind{
	"required":  {KindString, KindNumber, KindBool, KindArray},
	"min":       {KindString, KindNumber, KindArray},
	"max":       {KindString, KindNumber, KindArray},
	"size":      {KindString, KindNumber, KindArray},
	"between":   {KindString, KindNumber, KindArray},
	"in":        {KindString},
	"email":     {KindString},
	"url":       {KindString},
	"numeric":   {KindString, KindNumber},
	"alpha":     {KindString},
	"alpha_num": {KindString},
}

// compileRules translates a rule expression such as "required|min:3" into a
// validator tag for a field of kind. Unknown rules, and rules that cannot
// apply to kind, are rejected.
func compileRules(expr string, kind Kind) (string, error) {
	var tags []string
	required := false
	for _, rule := range strings.Split(expr, "|") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		name, arg, _ := strings.Cut(rule, ":")
		kinds, known := ruleKinds[name]
		if !known {
			return "", fmt.Errorf("unknown validation rule %q", name)
		}
		if !slices.Contains(kinds, kind) {
			return "", fmt.Errorf("rule %q does not apply to %s fields", name, kind)
		}
		switch name {
		case "required":
			required = true
			tags = append(tags, "required")
		case "min", "max":
			if !isNumeric(arg) {
				return "", fmt.Errorf("rule %q needs a numeric argument", rule)
			}
			tags = append(tags, name+"="+arg)
		case "size":
			if !isNumeric(arg) {
				return "", fmt.Errorf("rule %q needs a numeric argument", rule)
			}
			tags = append(tags, "len="+arg)
		case "between":
			lo, hi, ok := strings.Cut(arg, ",")
			if !ok || !isNumeric(lo) || !isNumeric(hi) {
				return "", fmt.Errorf("rule %q needs two numeric arguments", rule)
			}
			tags = append(tags, "min="+lo, "max="+hi)
		case "in":
			opts := strings.Split(arg, ",")
			for _, o := range opts {
				if o == "" || strings.ContainsAny(o, " |") {
					return "", fmt.Errorf("rule %q has an invalid option %q", rule, o)
				}
			}
			tags = append(tags, "oneof="+strings.Join(opts, " "))
		case "email", "url", "numeric", "alpha":
			tags = append(tags, name)
		case "alpha_num":
			tags = append(tags, "alphanum")
		default:
			return "", fmt.Errorf("unknown validation rule %q", name)
		}
	}
	if len(tags) == 0 {
		return "", nil
	}
	if !required {
		tags = append([]string{"omitempty"}, tags...)
	}
	return strings.Join(tags, ","), nil
}

func isNumeric(s string) bool {
	_, ok := parseNumber(s)
	return ok
}

// validateField checks one field and returns its message, or "" when valid.
func validateField(f *Field, inst any) string {
	if f.tag == "" {
		return ""
	}
	err := validate.Var(f.value(inst), f.tag)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return ruleMessage(f, verrs[0].Tag(), verrs[0].Param())
	}
	return fmt.Sprintf("The %s field is invalid.", label(f.Name))
}

// validateAll checks every field with rules.
func validateAll(def *Definition, inst any) Errors {
	errs := Errors{}
	for _, f := range def.fields {
		if msg := validateField(f, inst); msg != "" {
			errs.Add(f.Name, msg)
		}
	}
	return errs
}

func ruleMessage(f *Field, tag, param string) string {
	l := label(f.Name)
	switch tag {
	case "required":
		return fmt.Sprintf("The %s field is required.", l)
	case "min":
		switch f.Kind {
		case KindString:
			return fmt.Sprintf("The %s field must be at least %s characters.", l, param)
		case KindArray:
			return fmt.Sprintf("The %s field must have at least %s items.", l, param)
		default:
			return fmt.Sprintf("The %s field must be at least %s.", l, param)
		}
	case "max":
		switch f.Kind {
		case KindString:
			return fmt.Sprintf("The %s field must not be greater than %s characters.", l, param)
		case KindArray:
			return fmt.Sprintf("The %s field must not have more than %s items.", l, param)
		default:
			return fmt.Sprintf("The %s field must not be greater than %s.", l, param)
		}
	case "len":
		switch f.Kind {
		case KindString:
			return fmt.Sprintf("The %s field must be %s characters.", l, param)
		case KindArray:
			return fmt.Sprintf("The %s field must contain %s items.", l, param)
		default:
			return fmt.Sprintf("The %s field must be %s.", l, param)
		}
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", l)
	case "url":
		return fmt.Sprintf("The %s field must be a valid URL.", l)
	case "numeric":
		return fmt.Sprintf("The %s field must be a number.", l)
	case "alpha":
		return fmt.Sprintf("The %s field must only contain letters.", l)
	case "alphanum":
		return fmt.Sprintf("The %s field must only contain letters and numbers.", l)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", l)
	}
	return fmt.Sprintf("The %s field is invalid.", l)
}

func label(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
