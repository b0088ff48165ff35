package registrar

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/keshon/modkit/pkg/cmd"
)

// HashCache remembers the last pushed hash per scope.
type HashCache interface {
	CommandHash(scope string) (string, bool)
	SetCommandHash(scope, hash string) error
}

type hashOption struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
}

type hashCommand struct {
	Kind        string       `json:"kind"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Target      string       `json:"target,omitempty"`
	GuildOnly   bool         `json:"guild_only,omitempty"`
	Permissions int64        `json:"permissions,omitempty"`
	Options     []hashOption `json:"options,omitempty"`
}

// Hash returns a SHA-1 over the fields the platform stores, independent of
// input order. Runtime-only fields such as execute functions are ignored.
func Hash(cmds []*cmd.Descriptor) string {
	norm := make([]hashCommand, 0, len(cmds))
	for _, d := range cmds {
		hc := hashCommand{
			Kind:        d.Kind.String(),
			Name:        d.Name,
			Description: d.Description,
			GuildOnly:   d.GuildOnly,
			Permissions: d.CallerPermissions,
		}
		if d.Kind == cmd.KindContextMenu {
			hc.Target = string(d.Target)
		}
		for _, o := range d.Options {
			hc.Options = append(hc.Options, hashOption{
				Name:        o.Name,
				Description: o.Description,
				Type:        string(o.Type),
				Required:    o.Required,
			})
		}
		norm = append(norm, hc)
	}
	sort.Slice(norm, func(i, j int) bool {
		if norm[i].Kind != norm[j].Kind {
			return norm[i].Kind < norm[j].Kind
		}
		return norm[i].Name < norm[j].Name
	})
	data, _ := json.Marshal(norm)
	return fmt.Sprintf("%x", sha1.Sum(data))
}
