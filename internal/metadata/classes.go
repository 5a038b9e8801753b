package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// PropertyOverride carries explicit property settings declared outside the
// struct tags (YAML resource files)
type PropertyOverride struct {
	Groups       []string `json:"groups,omitempty" yaml:"groups,omitempty"`
	Readable     *bool    `json:"readable,omitempty" yaml:"readable,omitempty"`
	Writable     *bool    `json:"writable,omitempty" yaml:"writable,omitempty"`
	ReadableLink *bool    `json:"readable_link,omitempty" yaml:"readable_link,omitempty"`
	WritableLink *bool    `json:"writable_link,omitempty" yaml:"writable_link,omitempty"`
	Identifier   *bool    `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Required     *bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// ClassRegistry holds the Go struct types exposed as API classes together
// with the Resource declarations made in code and in YAML files.
// Every mutation changes the fingerprint, which invalidates cached metadata.
type ClassRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	order []string

	code       map[string][]Resource
	yaml       map[string][]Resource
	properties map[string]map[string]PropertyOverride

	version     uint64
	fingerprint string
	fpVersion   uint64
}

// NewClassRegistry creates an empty class registry
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		types:      make(map[string]reflect.Type),
		code:       make(map[string][]Resource),
		yaml:       make(map[string][]Resource),
		properties: make(map[string]map[string]PropertyOverride),
		version:    1,
	}
}

// Register registers the type of value under its type name. Resources are
// the declarations made in code; a type registered without any is an
// embeddable class, not a resource.
func (r *ClassRegistry) Register(value interface{}, resources ...Resource) error {
	t := indirectType(reflect.TypeOf(value))
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("cannot register %T: not a struct type", value)
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("cannot register anonymous struct type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[name]; ok {
		if existing != t {
			return fmt.Errorf("class %s is already registered by %s", name, existing.PkgPath())
		}
		return fmt.Errorf("class %s is already registered", name)
	}

	r.types[name] = t
	r.order = append(r.order, name)
	if len(resources) > 0 {
		decls := make([]Resource, len(resources))
		for i, res := range resources {
			decls[i] = res.Clone()
		}
		r.code[name] = decls
	}
	r.version++
	return nil
}

// MustRegister registers value and panics on failure
func (r *ClassRegistry) MustRegister(value interface{}, resources ...Resource) *ClassRegistry {
	if err := r.Register(value, resources...); err != nil {
		panic(err)
	}
	return r
}

// SetYAML replaces every declaration loaded from YAML files
func (r *ClassRegistry) SetYAML(resources map[string][]Resource, properties map[string]map[string]PropertyOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.yaml = make(map[string][]Resource, len(resources))
	for class, decls := range resources {
		cp := make([]Resource, len(decls))
		for i, res := range decls {
			cp[i] = res.Clone()
		}
		r.yaml[class] = cp
	}
	r.properties = make(map[string]map[string]PropertyOverride, len(properties))
	for class, props := range properties {
		cp := make(map[string]PropertyOverride, len(props))
		for name, p := range props {
			cp[name] = p
		}
		r.properties[class] = cp
	}
	r.version++
}

// Type returns the struct type registered for class
func (r *ClassRegistry) Type(class string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[class]
	return t, ok
}

// ClassOf returns the class name of a registered value
func (r *ClassRegistry) ClassOf(value interface{}) (string, bool) {
	t := indirectType(reflect.TypeOf(value))
	if t == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if registered, ok := r.types[t.Name()]; ok && registered == t {
		return t.Name(), true
	}
	return "", false
}

// New allocates a zero value of class and returns a pointer to it
func (r *ClassRegistry) New(class string) (reflect.Value, error) {
	t, ok := r.Type(class)
	if !ok {
		return reflect.Value{}, fmt.Errorf("class %s is not registered", class)
	}
	return reflect.New(t), nil
}

// Classes returns the registered class names in registration order
func (r *ClassRegistry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsResource reports whether class is registered and has declarations
func (r *ClassRegistry) IsResource(class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.types[class]; !ok {
		return false
	}
	return len(r.code[class]) > 0 || len(r.yaml[class]) > 0
}

// Declarations returns copies of the code and YAML declarations of class
func (r *ClassRegistry) Declarations(class string) (code, yaml []Resource) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.code[class] {
		code = append(code, res.Clone())
	}
	for _, res := range r.yaml[class] {
		yaml = append(yaml, res.Clone())
	}
	return code, yaml
}

// PropertyOverride returns the YAML settings of one property
func (r *ClassRegistry) PropertyOverride(class, property string) (PropertyOverride, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.properties[class][property]
	return p, ok
}

// PropertyOverrides returns the names of properties with YAML settings
func (r *ClassRegistry) PropertyOverrides(class string) map[string]PropertyOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]PropertyOverride, len(r.properties[class]))
	for name, p := range r.properties[class] {
		out[name] = p
	}
	return out
}

// Fingerprint identifies the current registry content. It changes whenever
// a class is registered or YAML declarations are reloaded.
func (r *ClassRegistry) Fingerprint() string {
	r.mu.RLock()
	if r.fpVersion == r.version {
		fp := r.fingerprint
		r.mu.RUnlock()
		return fp
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fpVersion == r.version {
		return r.fingerprint
	}

	type classState struct {
		Name       string                      `json:"name"`
		Type       string                      `json:"type"`
		Code       []Resource                  `json:"code,omitempty"`
		YAML       []Resource                  `json:"yaml,omitempty"`
		Properties map[string]PropertyOverride `json:"properties,omitempty"`
	}
	state := make([]classState, 0, len(r.order))
	for _, name := range r.order {
		t := r.types[name]
		state = append(state, classState{
			Name:       name,
			Type:       t.PkgPath() + "." + t.Name(),
			Code:       r.code[name],
			YAML:       r.yaml[name],
			Properties: r.properties[name],
		})
	}

	h := sha256.New()
	if err := json.NewEncoder(h).Encode(state); err != nil {
		// unencodable context values still get a per-version key
		fmt.Fprintf(h, "version:%d", r.version)
	}
	r.fingerprint = hex.EncodeToString(h.Sum(nil))[:16]
	r.fpVersion = r.version
	return r.fingerprint
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
