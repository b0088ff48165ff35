package module

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/modkit/pkg/cmd"
)

func TestIDForPath_Stable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m1.yaml")

	assert.Equal(t, IDForPath(p), IDForPath(p))
	assert.Equal(t, IDForPath(p), IDForPath(filepath.Join(dir, ".", "m1.yaml")))
	assert.NotEqual(t, IDForPath(p), IDForPath(filepath.Join(dir, "m2.yaml")))
}

func TestResolve_IDIgnoresContent(t *testing.T) {
	f := newFixture(t)
	mod := f.add("m1", func() *Definition { return okHooks().definition(message("ping")) })

	writeManifest(t, f.dir, "m1.yaml", "name: m1\nsettings:\n  greeting: hi\n")
	again, err := f.resolver.Resolve(context.Background(), mod.Path)
	require.NoError(t, err)
	assert.Equal(t, mod.ID, again.ID)
	assert.Equal(t, "hi", again.Settings["greeting"])
	assert.Equal(t, Resolved, again.State())
}

func TestResolve_VersionMismatch(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Register("m2", func() *Definition { return okHooks().definition() }))
	r, err := NewResolver(catalog, "2.0.0", zerolog.Nop())
	require.NoError(t, err)

	p := writeManifest(t, t.TempDir(), "m2.yaml", "name: m2\nversions: \"^1.0.0\"\n")

	_, err = r.Resolve(context.Background(), p)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindVersionMismatch), err.Error())

	mod, err := r.Resolve(context.Background(), p, WithoutVersionCheck())
	require.NoError(t, err)
	assert.Equal(t, []string{"^1.0.0"}, mod.Versions)
}

func TestResolve_AnyRangeMatches(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Register("m", func() *Definition {
		d := okHooks().definition()
		d.Versions = []string{"^1.0.0"}
		return d
	}))
	r, err := NewResolver(catalog, "2.3.1", zerolog.Nop())
	require.NoError(t, err)
	dir := t.TempDir()

	// definition ranges apply when the manifest declares none
	_, err = r.Resolve(context.Background(), writeManifest(t, dir, "a.yaml", "name: m\n"))
	assert.True(t, IsKind(err, KindVersionMismatch))

	_, err = r.Resolve(context.Background(), writeManifest(t, dir, "b.yaml", "name: m\nversions: [\"^1.0.0\", \">=2.3.0 <3.0.0\"]\n"))
	assert.NoError(t, err)

	_, err = r.Resolve(context.Background(), writeManifest(t, dir, "c.yaml", "name: m\nversions: \"not a range\"\n"))
	assert.True(t, IsKind(err, KindVersionMismatch))
}

func TestResolve_Failures(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Register("hookless", func() *Definition {
		return &Definition{Commands: []*cmd.Descriptor{message("ping")}}
	}))
	require.NoError(t, catalog.Register("dupes", func() *Definition {
		return okHooks().definition(message("ping"), message("ping"))
	}))
	r, err := NewResolver(catalog, "1.0.0", zerolog.Nop())
	require.NoError(t, err)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		kind ErrorKind
	}{
		{"missing file", filepath.Join(dir, "nope.yaml"), KindRead},
		{"bad yaml", writeManifest(t, dir, "bad.yaml", "name: [\n"), KindManifest},
		{"no name", writeManifest(t, dir, "anon.yaml", "versions: \"*\"\n"), KindManifest},
		{"unknown", writeManifest(t, dir, "ghost.yaml", "name: ghost\n"), KindUnknownModule},
		{"no hooks", writeManifest(t, dir, "hookless.yaml", "name: hookless\n"), KindShape},
		{"duplicate command", writeManifest(t, dir, "dupes.yaml", "name: dupes\n"), KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := r.Resolve(context.Background(), tt.path)
			require.Error(t, err)
			assert.Nil(t, mod)
			var re *ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, tt.path, re.Path)
		})
	}
}

func TestResolve_NoRegistrySideEffects(t *testing.T) {
	f := newFixture(t)
	f.add("m1", func() *Definition { return okHooks().definition(message("ping")) })
	assert.Equal(t, 0, f.registry.Len())
	_, tracked := f.manager.State(IDForPath(filepath.Join(f.dir, "m1.yaml")))
	assert.False(t, tracked)
}

func TestResolveDir(t *testing.T) {
	catalog := NewCatalog()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, catalog.Register(n, func() *Definition { return okHooks().definition() }))
	}
	r, err := NewResolver(catalog, "1.0.0", zerolog.Nop())
	require.NoError(t, err)

	dir := t.TempDir()
	writeManifest(t, dir, "b.yml", "name: b\n")
	writeManifest(t, dir, "a.yaml", "name: a\n")
	writeManifest(t, dir, "c.yaml", "name: c\ndisabled: true\n")
	writeManifest(t, dir, "ghost.yaml", "name: ghost\n")
	writeManifest(t, dir, "notes.txt", "name: a\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	mods, err := r.ResolveDir(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnknownModule))
	require.Len(t, mods, 2)
	assert.Equal(t, "a", mods[0].Name)
	assert.Equal(t, "b", mods[1].Name)

	_, err = r.ResolveDir(context.Background(), filepath.Join(dir, "missing"))
	assert.True(t, IsKind(err, KindRead))
}

func TestNewResolver_BadHostVersion(t *testing.T) {
	_, err := NewResolver(NewCatalog(), "banana", zerolog.Nop())
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	f := func() *Definition { return okHooks().definition() }
	require.NoError(t, c.Register("b", f))
	require.NoError(t, c.Register("a", f))
	assert.ErrorIs(t, c.Register("a", f), ErrDuplicateModule)
	assert.Error(t, c.Register("", f))
	assert.Equal(t, []string{"a", "b"}, c.Names())
	assert.Panics(t, func() { c.MustRegister("a", f) })
}

func TestResolve_CommandsAreDetached(t *testing.T) {
	opts := []cmd.Option{{Name: "text"}}
	say := &cmd.Descriptor{Kind: cmd.KindMessage, Name: "say", Execute: noopExec, Options: opts}
	menu := &cmd.Descriptor{Kind: cmd.KindContextMenu, Name: "Quote", Execute: noopExec}

	f := newFixture(t)
	mod := f.add("m1", func() *Definition { return okHooks().definition(say, menu) })
	opts[0].Name = "changed"

	cmds := mod.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "text", cmds[0].Options[0].Name)
	assert.NotSame(t, say, cmds[0])
	assert.Equal(t, cmd.TargetMessage, cmds[1].Target)
	assert.Empty(t, menu.Target)
}
