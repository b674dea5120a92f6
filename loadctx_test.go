package databin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/databin/internal/namehash"
	"github.com/meigma/databin/internal/testutil"
)

// namingRecord names another entry during phase 1.
type namingRecord struct {
	OpaqueRecord
	path string
}

func (r *namingRecord) OnPhase1(ctx *LoadContext) {
	ctx.Archive().ApplyFileName(r.path, true)
}

// observingRecord records the target's path during each phase.
type observingRecord struct {
	OpaqueRecord
	target int
	phase1 []string
	phase2 []string
}

func (r *observingRecord) pathOf(ctx *LoadContext) string {
	e, _ := ctx.Archive().FindByID(r.target)
	path, _ := e.Path()
	return path
}

func (r *observingRecord) OnPhase1(ctx *LoadContext) {
	r.phase1 = append(r.phase1, r.pathOf(ctx))
}

func (r *observingRecord) OnPhase2(ctx *LoadContext) {
	r.phase2 = append(r.phase2, r.pathOf(ctx))
}

func TestResolve_PhaseOrdering(t *testing.T) {
	t.Parallel()

	const late = `\GameData\late.bin`

	a := New()
	before, err := a.AddHashed(1, nil, false)
	require.NoError(t, err)
	namer, err := a.AddHashed(2, nil, false)
	require.NoError(t, err)
	target, err := a.AddHashed(namehash.HashPath(late), nil, false)
	require.NoError(t, err)
	after, err := a.AddHashed(3, nil, false)
	require.NoError(t, err)

	first := &observingRecord{target: target.ID()}
	last := &observingRecord{target: target.ID()}
	before.record = first
	namer.record = &namingRecord{path: late}
	after.record = last

	a.Resolve()

	assert.Equal(t, []string{""}, first.phase1, "phase 1 of an earlier entry runs before the name is assigned")
	assert.Equal(t, []string{late}, last.phase1)
	assert.Equal(t, []string{late}, first.phase2, "every phase 2 hook sees names assigned in phase 1")
	assert.Equal(t, []string{late}, last.phase2)
}

func TestResolve_ForwardModelReference(t *testing.T) {
	t.Parallel()

	const (
		modelPath   = `\GameData\Level03\Frog.mdl`
		texturePath = `\GameData\Level03\skin.img`
	)

	data := testutil.BuildArchive(t, []testutil.Record{
		{Hash: 0x100, Data: testutil.ChunkedPayload(testutil.Chunk{Tag: "MOD", Path: modelPath})},
		{Name: modelPath, Data: testutil.ModelPayload([]testutil.Material{
			{Name: "skin", Texture: "SKIN.IMG"},
			{Name: "eyes", Texture: "eyes.img"},
			{Name: "bare"},
		}, nil)},
		{Name: texturePath, Data: testutil.ImagePayload(4, 4, make([]byte, 16))},
	}, nil)

	logger, logs := captureLogger()
	a, err := LoadBytes(data, WithLogger(logger))
	require.NoError(t, err)

	model, _ := a.FindByID(1)
	path, ok := model.Path()
	require.True(t, ok)
	assert.Equal(t, modelPath, path)

	texture, _ := a.FindByID(2)
	path, ok = texture.Path()
	require.True(t, ok)
	assert.Equal(t, `\GameData\Level03\SKIN.IMG`, path)

	materials := model.Record().(*ModelRecord).Materials
	assert.Equal(t, 2, materials[0].TextureID)
	got, ok := materials[0].Texture(a)
	require.True(t, ok)
	assert.Same(t, texture, got)

	assert.Equal(t, -1, materials[1].TextureID)
	_, ok = materials[1].Texture(a)
	assert.False(t, ok)
	assert.Equal(t, -1, materials[2].TextureID)

	assert.Contains(t, logs.String(), "some material textures could not be resolved")
}

func TestResolve_TextureChunk(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.Record{
		{Hash: 0x100, Data: testutil.ChunkedPayload(
			testutil.Chunk{Tag: "TEX", Path: `\GameData\Shared\water.img`},
			testutil.Chunk{Tag: "MOD", Path: `\GameData\Level01\boat.mdl`},
		)},
		{Name: `\GameData\Level01\boat.mdl`, Data: testutil.ModelPayload([]testutil.Material{
			{Name: "deck", Texture: "water.img"},
		}, nil)},
		{Name: `\GameData\Shared\water.img`, Data: testutil.ImagePayload(1, 1, []byte{0})},
	}, nil)

	a, err := LoadBytes(data)
	require.NoError(t, err)

	water, ok := a.FindByPath(`\GameData\Shared\water.img`)
	require.True(t, ok)
	assert.True(t, water.HasPath())

	boat, _ := a.FindByID(1)
	assert.Equal(t, water.ID(), boat.Record().(*ModelRecord).Materials[0].TextureID,
		"textures registered by TEX chunks serve other models")
}

func TestResolve_MissingReference(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.Record{
		{Hash: 0x100, Data: testutil.ChunkedPayload(testutil.Chunk{Tag: "MOD", Path: `\GameData\gone.mdl`})},
	}, nil)

	logger, logs := captureLogger()
	a, err := LoadBytes(data, WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())
	assert.Contains(t, logs.String(), "no entry matches applied file name")

	toc, _ := a.FindByID(0)
	assert.Empty(t, toc.Record().(*ChunkedRecord).References())
}

func TestLoadContext_RegisterTexture(t *testing.T) {
	t.Parallel()

	a := New()
	first, err := a.Add(`\GameData\A\stone.img`, nil, false)
	require.NoError(t, err)
	second, err := a.Add(`\GameData\B\Stone.IMG`, nil, false)
	require.NoError(t, err)
	unnamed, err := a.AddHashed(1, nil, false)
	require.NoError(t, err)

	ctx := newLoadContext(a)
	ctx.RegisterTexture(first)
	ctx.RegisterTexture(second)
	ctx.RegisterTexture(unnamed)
	ctx.RegisterTexture(nil)

	got, ok := ctx.Texture("STONE.img")
	require.True(t, ok)
	assert.Same(t, first, got, "first registration wins")
	assert.Len(t, ctx.textures, 1)

	_, ok = ctx.Texture("marble.img")
	assert.False(t, ok)
}

func TestParentPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{`\GameData\Level\ship.mdl`, `\GameData\Level`},
		{`GameData/Level/ship.mdl`, `GameData/Level`},
		{`ship.mdl`, ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parentPath(tt.path), tt.path)
	}
}
