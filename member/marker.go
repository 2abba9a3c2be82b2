package member

import (
	"reflect"
	"sort"
	"strings"
)

// MarkerTag is the struct tag key read from Marker fields.
const MarkerTag = "intercept"

// SealMarker, used as a method-level marker, excludes the method from
// interception.
const SealMarker = "-"

// Marker is a zero-size field type that carries interception markers in its
// struct tag. A type may declare any number of blank Marker fields:
//
//	type Cart struct {
//		_ member.Marker `intercept:"audit"`
//		_ member.Marker `intercept:"Checkout=retry,audit;Close=-"`
//	}
//
// Bare names apply to the whole type. Name=list clauses apply to one method
// (or to both accessors of a property); "-" seals the method.
type Marker struct{}

var markerType = reflect.TypeOf(Marker{})

// Markers is the parsed marker set of one type.
type Markers struct {
	Type    []string
	Methods map[string][]string
}

// Sealed reports whether the method was sealed with "-".
func (m Markers) Sealed(name string) bool {
	for _, v := range m.Methods[name] {
		if v == SealMarker {
			return true
		}
	}
	return false
}

// For returns the markers that apply to a method: type-level markers, then
// the property's markers, then the method's own. Seal markers are dropped.
func (m Markers) For(method, property string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(vals []string) {
		for _, v := range vals {
			if v == SealMarker || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	add(m.Type)
	if property != "" && property != method {
		add(m.Methods[property])
	}
	add(m.Methods[method])
	return out
}

func (m *Markers) merge(typeLevel []string, methods map[string][]string) {
	m.Type = append(m.Type, typeLevel...)
	if len(methods) == 0 {
		return
	}
	if m.Methods == nil {
		m.Methods = make(map[string][]string)
	}
	for k, v := range methods {
		m.Methods[k] = append(m.Methods[k], v...)
	}
}

// ParseMarkerTag parses the value of an intercept struct tag.
func ParseMarkerTag(tag string) (typeLevel []string, methods map[string][]string) {
	for _, clause := range strings.Split(tag, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name, list, ok := strings.Cut(clause, "=")
		if !ok {
			typeLevel = append(typeLevel, splitNames(clause)...)
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if methods == nil {
			methods = make(map[string][]string)
		}
		methods[name] = append(methods[name], splitNames(list)...)
	}
	return typeLevel, methods
}

func splitNames(list string) []string {
	var out []string
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseMarkers merges the given intercept tag values into one marker set.
func ParseMarkers(tags ...string) Markers {
	var m Markers
	for _, tag := range tags {
		m.merge(ParseMarkerTag(tag))
	}
	sort.Strings(m.Type)
	return m
}

// MarkersOf collects the markers declared on a struct type through Marker
// fields. Non-struct types carry no markers.
func MarkersOf(t reflect.Type) Markers {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return Markers{}
	}
	var tags []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type != markerType {
			continue
		}
		if tag, ok := f.Tag.Lookup(MarkerTag); ok {
			tags = append(tags, tag)
		}
	}
	return ParseMarkers(tags...)
}
