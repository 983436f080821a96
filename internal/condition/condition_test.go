package condition

import "testing"

func TestEval(t *testing.T) {
	cases := []struct {
		name string
		expr string
		vars map[string]any
		want bool
	}{
		{"simple comparison true", "age >= 18", map[string]any{"age": 30.0}, true},
		{"simple comparison false", "age >= 18", map[string]any{"age": 17.0}, false},
		{"boolean and", "age >= 18 && verified == true", map[string]any{"age": 20.0, "verified": true}, true},
		{"boolean or", "age >= 18 || vip == true", map[string]any{"age": 10.0, "vip": true}, true},
		{"string equality", `country == "US"`, map[string]any{"country": "US"}, true},
		{"unknown identifier evaluates false", "missing_var == 1", map[string]any{"age": 1.0}, false},
		{"parse error evaluates false", "age >=", map[string]any{"age": 1.0}, false},
		{"non-boolean result evaluates false", "age + 1", map[string]any{"age": 1.0}, false},
		{"empty vars with literal", "1 == 1", map[string]any{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Eval(tc.expr, tc.vars)
			if got != tc.want {
				t.Errorf("Eval(%q, %v) = %v, want %v", tc.expr, tc.vars, got, tc.want)
			}
		})
	}
}
