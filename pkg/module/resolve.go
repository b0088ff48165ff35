package module

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/cmd"
)

// ErrorKind classifies a ResolutionError.
type ErrorKind string

const (
	KindRead            ErrorKind = "read"
	KindManifest        ErrorKind = "manifest"
	KindUnknownModule   ErrorKind = "unknown_module"
	KindShape           ErrorKind = "shape"
	KindVersionMismatch ErrorKind = "version_mismatch"
	KindValidation      ErrorKind = "validation"
)

// ResolutionError reports why a manifest could not become a Module.
type ResolutionError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ResolutionError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == k
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/keshon/modkit/module"))

// IDForPath returns the stable module id for a manifest path. It depends on
// the cleaned absolute path only, never on file content.
func IDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(idNamespace, []byte(filepath.Clean(path))).String()
}

// ResolveOption adjusts a single resolution.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	skipVersionCheck bool
}

// WithoutVersionCheck skips the host version gate.
func WithoutVersionCheck() ResolveOption {
	return func(c *resolveConfig) { c.skipVersionCheck = true }
}

// Resolver turns manifests into Modules using a Catalog.
type Resolver struct {
	catalog *Catalog
	host    *semver.Version
	log     zerolog.Logger
}

// NewResolver returns a resolver gating modules against hostVersion.
func NewResolver(catalog *Catalog, hostVersion string, log zerolog.Logger) (*Resolver, error) {
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return nil, fmt.Errorf("host version %q: %w", hostVersion, err)
	}
	if catalog == nil {
		catalog = Default
	}
	return &Resolver{catalog: catalog, host: v, log: log}, nil
}

// HostVersion returns the version modules are checked against.
func (r *Resolver) HostVersion() string { return r.host.String() }

// Resolve reads the manifest at path and builds a Module in state Resolved.
// It has no side effects beyond reading the file.
func (r *Resolver) Resolve(ctx context.Context, path string, opts ...ResolveOption) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	fail := func(k ErrorKind, err error) (*Module, error) {
		return nil, &ResolutionError{Path: path, Kind: k, Err: err}
	}

	man, err := ReadManifest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return fail(KindRead, err)
		}
		return fail(KindManifest, err)
	}

	factory, ok := r.catalog.Lookup(man.Name)
	if !ok {
		return fail(KindUnknownModule, fmt.Errorf("no module named %q", man.Name))
	}
	def := factory()
	if def == nil {
		return fail(KindShape, errors.New("factory returned nil"))
	}
	if def.OnStart == nil && def.OnLoad == nil && def.OnUnload == nil {
		return fail(KindShape, errors.New("module exposes no lifecycle hook"))
	}

	commands, err := validateCommands(def.Commands)
	if err != nil {
		return fail(KindValidation, err)
	}

	versions := def.Versions
	if len(man.Versions) > 0 {
		versions = man.Versions
	}
	if !cfg.skipVersionCheck {
		if err := r.checkVersion(versions); err != nil {
			return fail(KindVersionMismatch, err)
		}
	}

	return &Module{
		ID:          IDForPath(path),
		Name:        man.Name,
		Path:        path,
		Versions:    versions,
		Settings:    man.Settings,
		Disabled:    man.Disabled,
		onStart:     def.OnStart,
		onLoad:      def.OnLoad,
		onUnload:    def.OnUnload,
		resolveOpts: opts,
		state:       Resolved,
		commands:    commands,
	}, nil
}

// checkVersion passes when no range is declared or any declared range
// contains the host version.
func (r *Resolver) checkVersion(ranges []string) error {
	if len(ranges) == 0 {
		return nil
	}
	for _, raw := range ranges {
		c, err := semver.NewConstraint(raw)
		if err != nil {
			return fmt.Errorf("invalid range %q: %w", raw, err)
		}
		if c.Check(r.host) {
			return nil
		}
	}
	return fmt.Errorf("host %s satisfies none of %s", r.host, strings.Join(ranges, ", "))
}

func validateCommands(in []*cmd.Descriptor) ([]*cmd.Descriptor, error) {
	seen := make(map[cmd.Key]bool, len(in))
	out := make([]*cmd.Descriptor, 0, len(in))
	for i, d := range in {
		if d == nil {
			return nil, fmt.Errorf("commands[%d] is nil", i)
		}
		owned, err := cmd.NewDescriptor(*d)
		if err != nil {
			return nil, err
		}
		if seen[owned.Key()] {
			return nil, fmt.Errorf("duplicate command %s", owned.Key())
		}
		seen[owned.Key()] = true
		out = append(out, owned)
	}
	return out, nil
}

// ResolveDir resolves every *.yaml and *.yml manifest in dir in name order.
// Disabled manifests are skipped. Failures do not stop the scan; they come
// back joined in the error.
func (r *Resolver) ResolveDir(ctx context.Context, dir string, opts ...ResolveOption) ([]*Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ResolutionError{Path: dir, Kind: KindRead, Err: err}
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsManifest(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var (
		mods []*Module
		errs []error
	)
	for _, p := range paths {
		m, err := r.Resolve(ctx, p, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return mods, ctx.Err()
			}
			r.log.Warn().Err(err).Str("event", "module.resolve_failed").Str("path", p).Msg("module not resolved")
			errs = append(errs, err)
			continue
		}
		if m.Disabled {
			r.log.Info().Str("event", "module.disabled").Str("module", m.Name).Str("path", p).Msg("module disabled by manifest")
			continue
		}
		mods = append(mods, m)
	}
	return mods, errors.Join(errs...)
}

// IsManifest reports whether a file name looks like a module manifest.
func IsManifest(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
