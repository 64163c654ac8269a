package rcd

import "strings"

// Stratum is a set of constraints ranked together.
type Stratum struct {
	Constraints []string `json:"constraints" yaml:"constraints"`
	// Remainder marks the terminal stratum of constraints that no remaining
	// competition could tell apart.
	Remainder bool `json:"remainder,omitempty" yaml:"remainder,omitempty"`
}

func (s Stratum) String() string {
	return strings.Join(s.Constraints, ", ")
}

// Order is a ranking from highest to lowest stratum. Every constraint of
// stratum i dominates every constraint of stratum i+1.
type Order []Stratum

// String renders the order as "A, B >> C".
func (o Order) String() string {
	parts := make([]string, len(o))
	for i, s := range o {
		parts[i] = s.String()
	}
	return strings.Join(parts, " >> ")
}

// Constraints returns every ranked constraint, highest stratum first.
func (o Order) Constraints() []string {
	var names []string
	for _, s := range o {
		names = append(names, s.Constraints...)
	}
	return names
}

// Rank returns the stratum index of the named constraint, or -1.
func (o Order) Rank(name string) int {
	for i, s := range o {
		for _, c := range s.Constraints {
			if c == name {
				return i
			}
		}
	}
	return -1
}

func (o Order) clone() Order {
	if o == nil {
		return nil
	}
	out := make(Order, len(o))
	for i, s := range o {
		out[i] = Stratum{
			Constraints: append([]string(nil), s.Constraints...),
			Remainder:   s.Remainder,
		}
	}
	return out
}
