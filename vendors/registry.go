package vendors

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/nanoncore/nano-cliconf/types"
)

//go:embed dialects/*.yaml
var builtin embed.FS

// Registry maps family names to compiled dialects
type Registry struct {
	mu       sync.RWMutex
	dialects map[string]*Dialect
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{dialects: make(map[string]*Dialect)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process wide registry preloaded with the built-in families
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := defaultRegistry.LoadBuiltin(); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// Register adds or replaces a dialect
func (r *Registry) Register(d *Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialects[d.Name()] = d
}

// Get returns the dialect registered under name
func (r *Registry) Get(name string) (*Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.dialects[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return nil, types.InvalidParameter("dialect", "unknown dialect %q", name)
}

// Names returns the registered family names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dialects))
	for name := range r.dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the first family, by name order, whose detect pattern matches sysDescr
func (r *Registry) Detect(sysDescr string) (*Dialect, bool) {
	for _, name := range r.Names() {
		d, err := r.Get(name)
		if err == nil && d.Detects(sysDescr) {
			return d, true
		}
	}
	return nil, false
}

// LoadBuiltin registers the families embedded in the binary
func (r *Registry) LoadBuiltin() error {
	entries, err := builtin.ReadDir("dialects")
	if err != nil {
		return fmt.Errorf("failed to list built-in dialects: %w", err)
	}
	for _, e := range entries {
		data, err := builtin.ReadFile("dialects/" + e.Name())
		if err != nil {
			return fmt.Errorf("failed to read built-in dialect %s: %w", e.Name(), err)
		}
		d, err := Parse(data)
		if err != nil {
			return fmt.Errorf("built-in dialect %s: %w", e.Name(), err)
		}
		r.Register(d)
	}
	return nil
}

// LoadFile compiles and registers one dialect file (YAML, JSON or TOML by extension)
func (r *Registry) LoadFile(path string) (*Dialect, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read dialect file %s: %w", path, err)
	}
	d, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("dialect file %s: %w", path, err)
	}
	r.Register(d)
	return d, nil
}

// LoadDir registers every *.yaml / *.yml file in dir and returns the loaded names
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialect dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
		default:
			continue
		}
		d, err := r.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return names, err
		}
		names = append(names, d.Name())
	}
	return names, nil
}

// Parse compiles a YAML dialect record
func Parse(data []byte) (*Dialect, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse dialect: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Dialect, error) {
	var spec Spec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode dialect: %w", err)
	}
	return Compile(spec)
}
