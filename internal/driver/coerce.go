package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
)

// coerce converts raw user input to the declared variable type. string is an
// identity conversion; number accepts decimal integers or floats; boolean
// matches a closed set of case-insensitive tokens. Anything else is a
// coercion error, which the getMessage handler turns into a user-visible hint.
func coerce(raw string, t models.VariableType) (any, error) {
	switch t {
	case models.VarString, "":
		return raw, nil
	case models.VarNumber:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case models.VarBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
	default:
		return raw, nil
	}
}
