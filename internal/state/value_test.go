package state

import (
	"encoding/json"
	"math"
	"testing"
)

const planeJSON = `{
	"true_airspeed": 38.5,
	"vh_ind": -3.2,
	"stallWarning": false,
	"name": "c172",
	"rotationQuat": [1, 0, 0, 0],
	"targetValues": {"requestedClimbRate": -6, "requestedRoll": 0},
	"gear": null
}`

func decodePlane(t *testing.T) Document {
	t.Helper()
	var doc Document
	if err := json.Unmarshal([]byte(planeJSON), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestDocumentUnmarshalKinds(t *testing.T) {
	doc := decodePlane(t)

	tests := []struct {
		key  string
		kind Kind
	}{
		{"true_airspeed", KindNumber},
		{"stallWarning", KindBool},
		{"name", KindString},
		{"rotationQuat", KindList},
		{"targetValues", KindMap},
		{"gear", KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, ok := doc[tt.key]
			if !ok {
				t.Fatalf("key %s missing", tt.key)
			}
			if v.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", v.Kind(), tt.kind)
			}
		})
	}
}

func TestDocumentGet(t *testing.T) {
	doc := decodePlane(t)

	tests := []struct {
		name string
		path KeyPath
		want float64
		ok   bool
	}{
		{"top level", Path("true_airspeed"), 38.5, true},
		{"nested", Path("targetValues", "requestedClimbRate"), -6, true},
		{"list index", Path("rotationQuat", "0"), 1, true},
		{"bool reads as number", Path("stallWarning"), 0, true},
		{"missing", Path("nope"), 0, false},
		{"missing nested", Path("targetValues", "nope"), 0, false},
		{"through scalar", Path("true_airspeed", "x"), 0, false},
		{"bad index", Path("rotationQuat", "9"), 0, false},
		{"string leaf", Path("name"), 0, false},
		{"null leaf", Path("gear"), 0, false},
		{"sentinel", Derived, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := doc.Float(tt.path)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Float(%v) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDocumentCloneIsDeep(t *testing.T) {
	doc := decodePlane(t)
	c := doc.Clone()

	if !c.Equal(doc) {
		t.Fatal("clone should equal original")
	}

	inner, _ := c["targetValues"].Document()
	inner["requestedClimbRate"] = Number(99)

	if got, _ := doc.Float(Path("targetValues", "requestedClimbRate")); got != -6 {
		t.Errorf("original mutated through clone: %v", got)
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	doc := decodePlane(t)

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !back.Equal(doc) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", back.Any(), doc.Any())
	}
}

func TestDocumentFlatten(t *testing.T) {
	doc := decodePlane(t)
	flat := doc.Flatten()

	expected := map[string]float64{
		"true_airspeed":                   38.5,
		"vh_ind":                          -3.2,
		"stallWarning":                    0,
		"rotationQuat.0":                  1,
		"rotationQuat.3":                  0,
		"targetValues.requestedClimbRate": -6,
	}
	for k, want := range expected {
		if got, ok := flat[k]; !ok || got != want {
			t.Errorf("flat[%s] = %v (present %v), want %v", k, got, ok, want)
		}
	}
	if _, ok := flat["name"]; ok {
		t.Error("string leaves should not be flattened")
	}
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("expected error for struct value")
	}
	if _, err := DocumentFrom(map[string]any{"ch": make(chan int)}); err == nil {
		t.Error("expected error for channel value")
	}
}

func TestValueEqual(t *testing.T) {
	if !Number(math.NaN()).Equal(Number(math.NaN())) {
		t.Error("NaN numbers should compare equal")
	}
	if Number(1).Equal(Bool(true)) {
		t.Error("different kinds should not be equal")
	}
	if !List(Number(1), String("a")).Equal(List(Number(1), String("a"))) {
		t.Error("equal lists should compare equal")
	}
}
