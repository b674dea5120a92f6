package namehash

// builtinNames are paths the game opens by hash without storing a name.
var builtinNames = []string{
	`\GameData\Level00Global\Font\font01.img`,
	`\GameData\Level00Global\Font\font02.img`,
	`\GameData\Level00Global\Sounds\sfx.idx`,
	`\GameData\Level00Global\Text\text.dat`,
	`\GameData\Level00Global\Interface\hud.img`,
	`\GameData\Level00Global\Interface\loading.img`,
	`\GameData\Level00Global\Global.dat`,
	`\GameData\Level00Global\Player\frogger.vtx`,
	`\GameData\Level00Global\Player\frogger.img`,
	`\GameData\Level00Global\Player\frogger.dat`,
}

// BuiltinNames returns a copy of the built-in seed paths.
func BuiltinNames() []string {
	return append([]string(nil), builtinNames...)
}

// SeedTable maps name hashes to the paths known to produce them.
type SeedTable map[uint32]string

// NewSeedTable builds a table from the built-in names followed by extra.
// When two names share a hash, the first one wins.
func NewSeedTable(extra ...string) SeedTable {
	t := make(SeedTable, len(builtinNames)+len(extra))
	t.Add(builtinNames...)
	t.Add(extra...)
	return t
}

// Add records names whose hash is not yet present.
func (t SeedTable) Add(names ...string) {
	for _, name := range names {
		h := HashPath(name)
		if _, ok := t[h]; !ok {
			t[h] = name
		}
	}
}

// Lookup returns the seeded name for a hash.
func (t SeedTable) Lookup(hash uint32) (string, bool) {
	name, ok := t[hash]
	return name, ok
}
