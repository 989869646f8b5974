package plugin

import (
	"fmt"
	"sort"
)

// NewPluginFunc constructs a plugin instance. Each source package registers
// its constructor from init(), which keeps the registry free of imports on
// the source packages and avoids cycles.
type NewPluginFunc func() Plugin

var constructors = map[Kind]NewPluginFunc{}

// Register registers a plugin constructor. Called from init() in source
// packages; duplicate registration is a programming error.
func Register(kind Kind, constructor NewPluginFunc) {
	if _, ok := constructors[kind]; ok {
		panic(fmt.Sprintf("plugin %q registered twice", kind))
	}
	constructors[kind] = constructor
}

// New creates a plugin instance for the given kind.
func New(kind Kind) (Plugin, error) {
	constructor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownPlugin, kind, Kinds())
	}
	return constructor(), nil
}

// Kinds returns the registered plugin kinds, sorted for stable output.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
