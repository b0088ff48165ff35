package cmd

import "time"

// Builder is a fluent convenience over Descriptor. Build validates and
// returns the immutable descriptor; nothing downstream sees the builder.
type Builder struct {
	d Descriptor
}

// Slash starts a slash command.
func Slash(name, description string) *Builder {
	return &Builder{d: Descriptor{Kind: KindSlash, Name: name, Description: description}}
}

// Message starts a prefix message command.
func Message(name, description string) *Builder {
	return &Builder{d: Descriptor{Kind: KindMessage, Name: name, Description: description}}
}

// ContextMenu starts a context-menu command attached to target.
func ContextMenu(name string, target ContextTarget) *Builder {
	return &Builder{d: Descriptor{Kind: KindContextMenu, Name: name, Target: target}}
}

func (b *Builder) Group(group string) *Builder           { b.d.Group = group; return b }
func (b *Builder) Option(o Option) *Builder              { b.d.Options = append(b.d.Options, o); return b }
func (b *Builder) Flag(f Flag) *Builder                  { b.d.Flags = append(b.d.Flags, f); return b }
func (b *Builder) Cooldown(d time.Duration) *Builder     { b.d.Cooldown = d; return b }
func (b *Builder) GuildOnly() *Builder                   { b.d.GuildOnly = true; return b }
func (b *Builder) Guilds(ids ...string) *Builder         { b.d.Guilds = append(b.d.Guilds, ids...); return b }
func (b *Builder) BotPermissions(bits int64) *Builder    { b.d.BotPermissions |= bits; return b }
func (b *Builder) CallerPermissions(bits int64) *Builder { b.d.CallerPermissions |= bits; return b }
func (b *Builder) Execute(fn ExecuteFunc) *Builder       { b.d.Execute = fn; return b }
func (b *Builder) Halt(fn HaltFunc) *Builder             { b.d.Halt = fn; return b }

// Build validates the accumulated fields.
func (b *Builder) Build() (*Descriptor, error) {
	return NewDescriptor(b.d)
}

// MustBuild is Build for package-level command tables; it panics on an
// invalid descriptor.
func (b *Builder) MustBuild() *Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
