// Package params holds the settings tree used to configure every component.
//
// A [Parameters] value is a string-keyed tree of scalars, arrays and nested
// trees read from JSON, YAML or HCL. Components declare a [Schema] (a default
// tree plus required keys) and call [Resolve] once at construction time:
//
//	defaults := params.MustSchema(`{"echo_level": 0, "time_order": 2}`)
//	settings, err := params.Resolve(user, defaults)
//
// Resolve never mutates the caller's tree. Schemas of derived components
// inherit base defaults with [Schema.Extend].
//
// Numbers keep the kind of their literal: 2 is an integer, 2.0 is a real.
// An integer default rejects a real value with a fractional part; a real
// default accepts both.
package params
