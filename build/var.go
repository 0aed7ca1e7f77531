package build

import "reflect"

// A Var represents a variable whose value depends on which Release is being
// compiled. None of the fields may be nil, and all fields must have the same
// underlying type.
type Var struct {
	Standard interface{}
	Dev      interface{}
	Testing  interface{}
}

// Select returns the field of v that corresponds to the current Release. It
// panics if any field is nil, or if the fields are not all mutually
// assignable to the same type.
func Select(v Var) interface{} {
	if v.Standard == nil || v.Dev == nil || v.Testing == nil {
		panic("nil value in build variable")
	}
	ts := reflect.TypeOf(v.Standard)
	td := reflect.TypeOf(v.Dev)
	tt := reflect.TypeOf(v.Testing)
	if ts != td || ts != tt {
		panic("build variable fields must all share the same type")
	}
	switch Release {
	case "standard":
		return v.Standard
	case "dev":
		return v.Dev
	case "testing":
		return v.Testing
	default:
		panic("unrecognized Release: " + Release)
	}
}
