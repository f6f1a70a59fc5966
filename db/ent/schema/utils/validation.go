// Package utils carries small helpers shared by the ent schema definitions.
package utils

import "fmt"

// OneOf builds a field validator that accepts only the listed values.
func OneOf(allowed ...string) func(string) error {
	return func(s string) error {
		for _, want := range allowed {
			if s == want {
				return nil
			}
		}
		return fmt.Errorf("value %q is not in the allowed set", s)
	}
}
