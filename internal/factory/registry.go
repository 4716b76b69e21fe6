// Package factory provides closed, kind-keyed component registries and the
// active identifier registry used for response functions.
//
// A Registry is populated once at program start by package Register
// functions and is read-only afterwards. Create reads the discriminator
// field of a settings tree, looks the kind up and runs its constructor.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/femstage/internal/params"
)

var (
	// ErrUnknownKind is matched when a discriminator names no registered kind.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrDuplicateIdentifier is matched when an identifier is already active.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// Kind names a registered constructor, e.g. "FractionalStep".
type Kind string

// KindError reports a discriminator value that matches no registered kind.
type KindError struct {
	Category string
	Kind     Kind
	Known    []Kind
}

func (e *KindError) Error() string {
	known := make([]string, len(e.Known))
	for i, k := range e.Known {
		known[i] = string(k)
	}
	return fmt.Sprintf("%s: unknown kind %q (available: %s)", e.Category, e.Kind, strings.Join(known, ", "))
}

func (e *KindError) Is(target error) bool {
	return target == ErrUnknownKind || target == params.ErrConfiguration
}

// Constructor builds a component from its settings and the fixed
// construction arguments of the registry.
type Constructor[T any, A any] func(settings *params.Parameters, args A) (T, error)

type entry[T any, A any] struct {
	ctor   Constructor[T, A]
	schema params.Schema
}

// Registry maps kinds of one component category to constructors.
type Registry[T any, A any] struct {
	category      string
	discriminator string
	entries       map[Kind]entry[T, A]
	aliases       map[Kind]Kind
}

// NewRegistry creates a registry whose Create reads the kind from the
// discriminator key of the settings tree (e.g. "solver_type").
func NewRegistry[T any, A any](category, discriminator string) *Registry[T, A] {
	return &Registry[T, A]{
		category:      category,
		discriminator: discriminator,
		entries:       make(map[Kind]entry[T, A]),
		aliases:       make(map[Kind]Kind),
	}
}

// Register adds a kind. The schema is the kind's default settings, exposed
// through Defaults for tooling. Registering a kind twice panics.
func (r *Registry[T, A]) Register(kind Kind, schema params.Schema, ctor Constructor[T, A]) {
	if _, exists := r.entries[kind]; exists {
		panic(fmt.Sprintf("%s kind %q already registered", r.category, kind))
	}
	if _, exists := r.aliases[kind]; exists {
		panic(fmt.Sprintf("%s kind %q already registered as alias", r.category, kind))
	}
	r.entries[kind] = entry[T, A]{ctor: ctor, schema: schema}
}

// Alias makes alias resolve to an already registered kind.
func (r *Registry[T, A]) Alias(alias, kind Kind) {
	if _, ok := r.entries[kind]; !ok {
		panic(fmt.Sprintf("%s alias %q targets unregistered kind %q", r.category, alias, kind))
	}
	if _, exists := r.entries[alias]; exists {
		panic(fmt.Sprintf("%s alias %q shadows a kind", r.category, alias))
	}
	r.aliases[alias] = kind
}

func (r *Registry[T, A]) Category() string      { return r.category }
func (r *Registry[T, A]) Discriminator() string { return r.discriminator }

// Kinds lists registered kinds in sorted order, aliases excluded.
func (r *Registry[T, A]) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lookup resolves a kind or alias.
func (r *Registry[T, A]) Lookup(kind Kind) (Kind, bool) {
	if _, ok := r.entries[kind]; ok {
		return kind, true
	}
	target, ok := r.aliases[kind]
	return target, ok
}

// Defaults returns the default settings schema of a kind.
func (r *Registry[T, A]) Defaults(kind Kind) (params.Schema, error) {
	resolved, ok := r.Lookup(kind)
	if !ok {
		return params.Schema{}, r.unknown(kind)
	}
	return r.entries[resolved].schema, nil
}

// Create constructs the kind named by the discriminator field of settings.
func (r *Registry[T, A]) Create(settings *params.Parameters, args A) (T, error) {
	var zero T

	raw, ok := settings.Get(r.discriminator)
	if !ok {
		return zero, &params.ConfigError{Path: r.discriminator, Reason: r.category + " kind is not specified"}
	}
	name, ok := raw.(string)
	if !ok {
		return zero, &params.ConfigError{Path: r.discriminator, Reason: fmt.Sprintf("expected string, got %v", raw)}
	}
	return r.CreateKind(Kind(name), settings, args)
}

// CreateKind constructs an explicitly named kind.
func (r *Registry[T, A]) CreateKind(kind Kind, settings *params.Parameters, args A) (T, error) {
	var zero T

	resolved, ok := r.Lookup(kind)
	if !ok {
		return zero, r.unknown(kind)
	}

	c, err := r.entries[resolved].ctor(settings, args)
	if err != nil {
		return zero, fmt.Errorf("create %s %q: %w", r.category, kind, err)
	}
	return c, nil
}

func (r *Registry[T, A]) unknown(kind Kind) error {
	return &KindError{Category: r.category, Kind: kind, Known: r.Kinds()}
}
