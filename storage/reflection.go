package storage

import (
	"reflect"
	"regexp"
	"strings"
)

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// typeName resolves the type name of item, looking through pointers and slices so that
// *Profile, []Profile and *[]*Profile all name "Profile".
func typeName(item any) string {
	t := reflect.TypeOf(item)
	for t != nil && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// tableName is the snake case plural of the type name of item, the table it is stored in.
func tableName(item any) string {
	name := matchFirstCap.ReplaceAllString(typeName(item), "${1}_${2}")
	name = matchAllCap.ReplaceAllString(name, "${1}_${2}")
	return strings.ToLower(name) + "s"
}
