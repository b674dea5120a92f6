package databin

import (
	"strings"

	"github.com/meigma/databin/internal/namehash"
)

// LoadContext carries state shared between records while an archive
// resolves cross-entry references. One is created per resolution pass and
// discarded when the pass completes.
type LoadContext struct {
	archive  *Archive
	textures map[string]int
	named    int
	linked   int
	missing  int
}

func newLoadContext(a *Archive) *LoadContext {
	return &LoadContext{
		archive:  a,
		textures: make(map[string]int),
	}
}

// Archive returns the archive being resolved.
func (c *LoadContext) Archive() *Archive {
	return c.archive
}

// run calls OnPhase1 for every entry, then OnPhase2 for every entry, then
// completes the context. No phase-2 hook starts before every phase-1 hook
// has returned. Material links from an earlier pass are cleared first, so
// models no longer referenced by any chunk end up unresolved.
func (c *LoadContext) run(entries []*Entry) {
	for _, e := range entries {
		if model, ok := modelOf(e); ok {
			for i := range model.Materials {
				model.Materials[i].TextureID = -1
			}
		}
	}
	for _, e := range entries {
		if e.record != nil {
			e.record.OnPhase1(c)
		}
	}
	for _, e := range entries {
		if e.record != nil {
			e.record.OnPhase2(c)
		}
	}
	c.complete()
}

// complete reports the outcome of the pass and releases the shared tables.
func (c *LoadContext) complete() {
	log := c.archive.log()
	log.Debug("resolution complete",
		"textures", len(c.textures),
		"texture_names_applied", c.named,
		"materials_linked", c.linked,
		"materials_unresolved", c.missing,
	)
	if c.missing > 0 {
		log.Warn("some material textures could not be resolved", "count", c.missing)
	}
	c.textures = nil
}

// RegisterTexture makes e available to material resolution under the base
// name of its path. The first registration of a name wins.
func (c *LoadContext) RegisterTexture(e *Entry) {
	if e == nil || e.path == "" {
		return
	}
	key := textureKey(e.path)
	if _, ok := c.textures[key]; !ok {
		c.textures[key] = e.id
	}
}

// Texture returns the registered texture whose base name matches name.
func (c *LoadContext) Texture(name string) (*Entry, bool) {
	id, ok := c.textures[textureKey(name)]
	if !ok {
		return nil, false
	}
	return c.archive.FindByID(id)
}

// ApplyLevelTextureNames names the texture entries used by materials of the
// model at modelPath. Textures are stored in the model's directory.
func (c *LoadContext) ApplyLevelTextureNames(from *Entry, modelPath string, materials []Material) {
	dir := parentPath(modelPath)
	for i := range materials {
		name := materials[i].TextureName
		if name == "" {
			continue
		}
		path := name
		if dir != "" {
			path = dir + `\` + name
		}
		if tex := c.archive.ApplyFileName(path, false); tex != nil {
			c.RegisterTexture(tex)
			c.named++
			continue
		}
		c.archive.log().Debug("material texture not in archive",
			"texture", path, "referenced_by", displayName(from))
	}
}

// ResolveMaterialTextures links each material to its registered texture.
func (c *LoadContext) ResolveMaterialTextures(from *Entry, materials []Material) {
	for i := range materials {
		m := &materials[i]
		if m.TextureName == "" {
			continue
		}
		tex, ok := c.Texture(m.TextureName)
		if !ok {
			m.TextureID = -1
			c.missing++
			c.archive.log().Debug("material texture unresolved",
				"material", m.Name, "texture", m.TextureName, "referenced_by", displayName(from))
			continue
		}
		m.TextureID = tex.id
		c.linked++
	}
}

// textureKey is the lower-cased last component of a path.
func textureKey(path string) string {
	id := namehash.FileID(path)
	if i := strings.LastIndexByte(id, namehash.Separator); i >= 0 {
		return id[i+1:]
	}
	return id
}

// parentPath returns path without its last component, keeping its spelling.
func parentPath(path string) string {
	i := strings.LastIndexAny(path, `\/`)
	if i < 0 {
		return ""
	}
	return path[:i]
}

func displayName(e *Entry) string {
	if e == nil {
		return ""
	}
	return e.DisplayName()
}
