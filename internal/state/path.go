package state

import "strings"

// KeyPath addresses one scalar inside a Document. A zero-length KeyPath is
// the "no path" sentinel used for slots the caller computes itself.
type KeyPath []string

// Derived is the sentinel KeyPath.
var Derived KeyPath

func Path(segments ...string) KeyPath {
	return KeyPath(segments)
}

// ParseKeyPath splits a dotted path such as "targetValues.requestedClimbRate".
// The empty string and "-" parse to the sentinel.
func ParseKeyPath(s string) KeyPath {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return Derived
	}
	return KeyPath(strings.Split(s, "."))
}

func (p KeyPath) IsDerived() bool { return len(p) == 0 }

func (p KeyPath) String() string {
	if p.IsDerived() {
		return "-"
	}
	return strings.Join(p, ".")
}

// ObservationSpec fixes the shape and order of an extracted Vector.
type ObservationSpec []KeyPath

func Spec(paths ...KeyPath) ObservationSpec {
	return ObservationSpec(paths)
}

// ParseSpec builds a spec from dotted path strings (see ParseKeyPath).
func ParseSpec(paths []string) ObservationSpec {
	spec := make(ObservationSpec, len(paths))
	for i, p := range paths {
		spec[i] = ParseKeyPath(p)
	}
	return spec
}

func (s ObservationSpec) Len() int { return len(s) }

// Project extracts one value per entry. Sentinel entries, unresolved paths
// and non-numeric leaves all yield 0. A nil document yields all zeros.
// The result is always freshly allocated with len(s) entries.
func (s ObservationSpec) Project(doc Document) Vector {
	out := make(Vector, len(s))
	if doc == nil {
		return out
	}
	for i, path := range s {
		if path.IsDerived() {
			continue
		}
		if f, ok := doc.Float(path); ok {
			out[i] = f
		}
	}
	return out
}

// Missing lists the non-sentinel paths that do not resolve to a number.
func (s ObservationSpec) Missing(doc Document) []KeyPath {
	var missing []KeyPath
	for _, path := range s {
		if path.IsDerived() {
			continue
		}
		if _, ok := doc.Float(path); !ok {
			missing = append(missing, path)
		}
	}
	return missing
}

func (s ObservationSpec) DerivedSlots() []int {
	var slots []int
	for i, path := range s {
		if path.IsDerived() {
			slots = append(slots, i)
		}
	}
	return slots
}

func (s ObservationSpec) Labels() []string {
	labels := make([]string, len(s))
	for i, path := range s {
		labels[i] = path.String()
	}
	return labels
}
