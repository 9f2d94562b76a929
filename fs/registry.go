package fs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NewFsFunc constructs a Fs instance for the given name (config section)
// and root path, with backend options already resolved to a flat map.
type NewFsFunc func(ctx context.Context, name, root string, opts map[string]string) (Fs, error)

// RegInfo describes a registrable backend factory (spec.md section 4.2).
type RegInfo struct {
	// Name is the canonical protocol name, e.g. "s3", "memory".
	Name string
	// Description is a short human-readable summary.
	Description string
	// NewFs constructs an instance.
	NewFs NewFsFunc
	// Aliases lists additional protocol names that resolve to this factory.
	Aliases []string
}

// Registry is a process-wide map from protocol name to factory
// descriptor. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*RegInfo
	aliases map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*RegInfo),
		aliases: make(map[string]string),
	}
}

// Register adds info under its Name and Aliases. clobber=false (the
// default via the package-level Register) rejects re-registration of an
// existing name; clobber=true overwrites it.
func (r *Registry) Register(info *RegInfo, clobber bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !clobber {
		if _, ok := r.byName[info.Name]; ok {
			return NewError(KindAlreadyExists, "register", info.Name, fmt.Errorf("protocol %q already registered", info.Name))
		}
	}
	r.byName[info.Name] = info
	for _, alias := range info.Aliases {
		r.aliases[alias] = info.Name
	}
	return nil
}

// Get resolves name (or an alias of it) to its RegInfo.
func (r *Registry) Get(name string) (*RegInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.byName[name]; ok {
		return info, nil
	}
	if canonical, ok := r.aliases[name]; ok {
		if info, ok := r.byName[canonical]; ok {
			return info, nil
		}
	}
	return nil, NewError(KindProtocolUnknown, "get", name, fmt.Errorf("unknown protocol %q", name))
}

// Known lists every registered protocol name, sorted, canonical names only.
func (r *Registry) Known() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the subset of Known() whose factory can actually be
// used. Because Go links every registered backend into the binary at
// compile time (unlike the teacher's lazy dynamic import), there is no
// "known but not importable" state here: Available always equals Known.
// The method is kept so callers written against the spec's distinction
// compile unchanged if a future backend gates itself on a build tag.
func (r *Registry) Available() []string {
	return r.Known()
}

// Reset clears all registrations. Exposed for test isolation, mirroring
// spec.md section 9 ("expose reset() for test isolation").
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*RegInfo)
	r.aliases = make(map[string]string)
}

// DefaultRegistry is the process-wide registry singleton.
var DefaultRegistry = NewRegistry()

// Register registers info in DefaultRegistry without clobbering an
// existing entry. Backends call this from an init() func.
func Register(info *RegInfo) error {
	return DefaultRegistry.Register(info, false)
}

// MustRegister is Register but panics on failure, for use in init().
func MustRegister(info *RegInfo) {
	if err := Register(info); err != nil {
		panic(err)
	}
}

// Get resolves a protocol name against DefaultRegistry.
func Get(name string) (*RegInfo, error) { return DefaultRegistry.Get(name) }

// Known lists protocols registered in DefaultRegistry.
func Known() []string { return DefaultRegistry.Known() }

// Available lists importable protocols in DefaultRegistry (see Registry.Available).
func Available() []string { return DefaultRegistry.Available() }
