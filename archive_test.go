package databin

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/databin/internal/namehash"
	"github.com/meigma/databin/internal/testutil"
)

// These paths reduce to file ids that hash identically.
const (
	collideA = `\GameData\a_.img`
	collideB = `\GameData\b@.img`
	collideC = `\GameData\c!.img`
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestCollisionFixture(t *testing.T) {
	t.Parallel()

	require.False(t, namehash.SameFile(collideA, collideB))
	require.Equal(t, namehash.HashPath(collideA), namehash.HashPath(collideB))
	require.Equal(t, namehash.HashPath(collideA), namehash.HashPath(collideC))
}

func TestAdd_CollisionBucket(t *testing.T) {
	t.Parallel()

	a := New()
	first, err := a.Add(collideA, []byte("first"), false)
	require.NoError(t, err)
	assert.False(t, first.Collision())

	second, err := a.Add(collideB, []byte("second"), true)
	require.NoError(t, err)

	assert.True(t, first.Collision(), "existing entry is promoted into the bucket")
	assert.True(t, second.Collision())
	assert.Empty(t, a.primary)
	assert.Equal(t, []int{0, 1}, a.buckets[namehash.HashPath(collideA)])

	got, ok := a.FindByPath(collideA)
	require.True(t, ok)
	assert.Same(t, first, got)

	got, ok = a.FindByPath(`gamedata/B@.IMG`)
	require.True(t, ok)
	assert.Same(t, second, got)

	_, ok = a.FindByPath(collideC)
	assert.False(t, ok, "a third colliding path is not stored")

	assert.Equal(t, []*Entry{first, second}, a.FindByHash(namehash.HashPath(collideA)))
}

func TestAddNamed(t *testing.T) {
	t.Parallel()

	a := New()
	unnamed, err := a.AddHashed(namehash.HashPath(`\GameData\shared.bin`), []byte("hashed"), false)
	require.NoError(t, err)
	shared, err := a.AddNamed(`\GameData\shared.bin`, []byte("named"), false)
	require.NoError(t, err, "a named entry may share its hash with a hash-only entry")
	solo, err := a.AddNamed(`\GameData\solo.bin`, []byte("solo"), true)
	require.NoError(t, err)

	assert.False(t, unnamed.Collision())
	assert.True(t, shared.Collision())
	assert.True(t, solo.Collision(), "a lone named entry still goes into its bucket")
	assert.Equal(t, []int{solo.ID()}, a.buckets[namehash.HashPath(`\GameData\solo.bin`)])

	got, ok := a.FindByPath(`\GameData\shared.bin`)
	require.True(t, ok)
	assert.Same(t, unnamed, got, "the primary index answers first")

	_, err = a.AddNamed(`\gamedata\SOLO.bin`, nil, false)
	require.ErrorIs(t, err, ErrDuplicatePath)
	_, err = a.AddNamed(strings.Repeat("x", PathSize), nil, false)
	require.ErrorIs(t, err, ErrPathTooLong)

	data, err := a.SaveBytes()
	require.NoError(t, err)
	loaded, err := LoadBytes(data)
	require.NoError(t, err)
	reloaded, ok := loaded.FindByID(2)
	require.True(t, ok)
	path, ok := reloaded.Path()
	require.True(t, ok, "lone named entries keep their stored path")
	assert.Equal(t, `\GameData\solo.bin`, path)
	assert.True(t, reloaded.Collision())
}

func TestAdd_MaxEntrySize(t *testing.T) {
	t.Parallel()

	a := New(WithMaxEntrySize(4))
	_, err := a.Add(`\GameData\big.bin`, []byte("too large"), false)
	require.ErrorIs(t, err, ErrSizeOverflow)
	_, err = a.AddHashed(1, []byte("too large"), false)
	require.ErrorIs(t, err, ErrSizeOverflow)
	_, err = a.AddNamed(`\GameData\big.bin`, []byte("too large"), false)
	require.ErrorIs(t, err, ErrSizeOverflow)
	assert.Equal(t, 0, a.Len())

	e, err := a.AddHashed(2, []byte("ok"), false)
	require.NoError(t, err)
	_, err = a.ReplaceEntry(e.ID(), []byte("too large"))
	require.ErrorIs(t, err, ErrSizeOverflow)
	assert.Equal(t, []byte("ok"), e.RawBytes())

	unlimited := New(WithMaxEntrySize(0))
	_, err = unlimited.AddHashed(1, []byte("too large"), false)
	require.NoError(t, err)
}

func TestAdd_Errors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate path", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.Add(`\GameData\x.bin`, nil, false)
		require.NoError(t, err)
		_, err = a.Add(`gamedata/X.BIN`, nil, false)
		require.ErrorIs(t, err, ErrDuplicatePath)
		assert.Equal(t, 1, a.Len())
	})

	t.Run("duplicate path in bucket", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.Add(collideA, nil, false)
		require.NoError(t, err)
		_, err = a.Add(collideB, nil, false)
		require.NoError(t, err)
		_, err = a.Add(collideB, nil, false)
		require.ErrorIs(t, err, ErrDuplicatePath)
		assert.Equal(t, 2, a.Len())
	})

	t.Run("collision with unnamed entry", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.AddHashed(namehash.HashPath(collideA), nil, false)
		require.NoError(t, err)
		_, err = a.Add(collideB, nil, false)
		require.ErrorIs(t, err, ErrUnnamedCollision)
	})

	t.Run("duplicate hash", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.AddHashed(0x1234, nil, false)
		require.NoError(t, err)
		_, err = a.AddHashed(0x1234, nil, false)
		require.ErrorIs(t, err, ErrDuplicateHash)
	})

	t.Run("hash already in bucket", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.Add(collideA, nil, false)
		require.NoError(t, err)
		_, err = a.Add(collideB, nil, false)
		require.NoError(t, err)
		_, err = a.AddHashed(namehash.HashPath(collideC), nil, false)
		require.ErrorIs(t, err, ErrUnnamedCollision)
	})

	t.Run("path too long", func(t *testing.T) {
		t.Parallel()
		a := New()
		_, err := a.Add(string(bytes.Repeat([]byte("a"), PathSize)), nil, false)
		require.ErrorIs(t, err, ErrPathTooLong)
	})
}

func TestAdd_ParseFailureRevertsPromotion(t *testing.T) {
	t.Parallel()

	a := New()
	first, err := a.Add(collideA, []byte("first"), false)
	require.NoError(t, err)

	broken := append([]byte("6YTV"), 9, 0, 0, 0)
	_, err = a.Add(collideB, broken, false)
	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, 1, entryErr.Index)
	assert.Equal(t, KindModel, entryErr.Kind)

	assert.Equal(t, 1, a.Len())
	assert.False(t, first.Collision())
	assert.Empty(t, a.buckets)
	got, ok := a.FindByPath(collideA)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestAdd_ClassifiesPayload(t *testing.T) {
	t.Parallel()

	a := New()
	img, err := a.Add(`\GameData\pic.img`, testutil.ImagePayload(8, 4, []byte{1, 2, 3}), false)
	require.NoError(t, err)
	mdl, err := a.Add(`\GameData\ship.mdl`, testutil.ModelPayload([]testutil.Material{{Name: "hull", Texture: "hull.img"}}, []byte{9}), false)
	require.NoError(t, err)
	toc, err := a.Add(`\GameData\level.toc`, testutil.ChunkedPayload(testutil.Chunk{Tag: "MOD", Path: `\GameData\ship.mdl`}), false)
	require.NoError(t, err)
	raw, err := a.Add(`\GameData\notes.txt`, []byte("plain text"), false)
	require.NoError(t, err)

	assert.Equal(t, KindImage, img.Kind())
	assert.Equal(t, KindModel, mdl.Kind())
	assert.Equal(t, KindChunked, toc.Kind())
	assert.Equal(t, KindOpaque, raw.Kind())

	image := img.Record().(*ImageRecord)
	assert.Equal(t, uint32(8), image.Width)
	assert.Equal(t, uint32(4), image.Height)
	assert.False(t, image.Headerless)

	model := mdl.Record().(*ModelRecord)
	require.Len(t, model.Materials, 1)
	assert.Equal(t, "hull", model.Materials[0].Name)
	assert.Equal(t, "hull.img", model.Materials[0].TextureName)
	assert.Equal(t, -1, model.Materials[0].TextureID)
	assert.Equal(t, []byte{9}, model.Tail)

	chunked := toc.Record().(*ChunkedRecord)
	require.Len(t, chunked.Chunks, 1)
	assert.Equal(t, "MOD", chunked.Chunks[0].Tag.String())
	assert.Equal(t, []*Entry{mdl}, chunked.References())
}

func TestFindByPath_PrimaryMatchesHashOnly(t *testing.T) {
	t.Parallel()

	a := New()
	e, err := a.AddHashed(namehash.HashPath(`\GameData\Level00Global\sky.img`), []byte("sky"), false)
	require.NoError(t, err)

	got, ok := a.FindByPath(`gamedata\level00global\SKY.IMG`)
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.False(t, e.HasPath(), "lookup does not name the entry")

	_, ok = a.FindByPath(`\GameData\missing.img`)
	assert.False(t, ok)
	assert.Empty(t, a.FindByHash(0xdeadbeef))
}

func TestFindByID(t *testing.T) {
	t.Parallel()

	a := New()
	e, err := a.AddHashed(1, nil, false)
	require.NoError(t, err)

	got, ok := a.FindByID(0)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = a.FindByID(1)
	assert.False(t, ok)
	_, ok = a.FindByID(-1)
	assert.False(t, ok)
}

func TestApplyFileName(t *testing.T) {
	t.Parallel()

	logger, logs := captureLogger()
	a := New(WithLogger(logger))
	e, err := a.AddHashed(namehash.HashPath(`\GameData\a.bin`), nil, false)
	require.NoError(t, err)

	got := a.ApplyFileName(`\GameData\A.bin`, true)
	require.Same(t, e, got)
	path, ok := e.Path()
	require.True(t, ok)
	assert.Equal(t, `\GameData\A.bin`, path)
	assert.Equal(t, `gamedata\a.bin`, e.FileID())

	assert.Nil(t, a.ApplyFileName(`\GameData\b.bin`, false))
	assert.NotContains(t, logs.String(), "no entry matches")

	assert.Nil(t, a.ApplyFileName(`\GameData\b.bin`, true))
	assert.Contains(t, logs.String(), "no entry matches applied file name")
}

func TestFindReferenced_WarnsOnMiss(t *testing.T) {
	t.Parallel()

	logger, logs := captureLogger()
	a := New(WithLogger(logger))
	from, err := a.Add(`\GameData\level.toc`, nil, false)
	require.NoError(t, err)

	_, ok := a.FindReferenced(from, `\GameData\gone.mdl`)
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "referenced file not found")
	assert.Contains(t, logs.String(), "referenced_by=")
	assert.Contains(t, logs.String(), "level.toc")

	got, ok := a.FindReferenced(nil, `\GameData\level.toc`)
	require.True(t, ok)
	assert.Same(t, from, got)
}

func TestReplaceEntry(t *testing.T) {
	t.Parallel()

	a := New()
	e, err := a.Add(`\GameData\thing.bin`, []byte("opaque"), true)
	require.NoError(t, err)
	e.MarkModified()

	model := testutil.ModelPayload([]testutil.Material{{Name: "m", Texture: "t.img"}}, nil)
	got, err := a.ReplaceEntry(e.ID(), model)
	require.NoError(t, err)
	assert.Same(t, e, got)
	assert.Equal(t, KindModel, e.Kind())
	assert.True(t, e.Compressed())
	assert.False(t, e.Modified())

	data, err := e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, model, data)

	path, _ := e.Path()
	assert.Equal(t, `\GameData\thing.bin`, path)
}

func TestReplaceEntry_Errors(t *testing.T) {
	t.Parallel()

	a := New()
	e, err := a.Add(`\GameData\thing.bin`, []byte("opaque"), false)
	require.NoError(t, err)

	_, err = a.ReplaceEntry(5, nil)
	require.ErrorIs(t, err, ErrNoEntry)

	_, err = a.ReplaceEntry(e.ID(), []byte("TOC\x00\x01"))
	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, KindChunked, entryErr.Kind)

	assert.Equal(t, KindOpaque, e.Kind())
	assert.Equal(t, []byte("opaque"), e.RawBytes())
}

func TestReplaceEntry_ResolvesAgain(t *testing.T) {
	t.Parallel()

	a := New()
	toc, err := a.Add(`\Level\level.toc`, nil, false)
	require.NoError(t, err)
	mdl, err := a.AddHashed(namehash.HashPath(`\Level\ship.mdl`), testutil.ModelPayload(nil, nil), false)
	require.NoError(t, err)
	assert.False(t, mdl.HasPath())

	_, err = a.ReplaceEntry(toc.ID(), testutil.ChunkedPayload(testutil.Chunk{Tag: "MOD", Path: `\Level\ship.mdl`}))
	require.NoError(t, err)

	path, ok := mdl.Path()
	require.True(t, ok)
	assert.Equal(t, `\Level\ship.mdl`, path)
}

func TestReplaceEntry_ClearsStaleTextureLinks(t *testing.T) {
	t.Parallel()

	a := New()
	toc, err := a.Add(`\Level\level.toc`,
		testutil.ChunkedPayload(testutil.Chunk{Tag: "MOD", Path: `\Level\ship.mdl`}), false)
	require.NoError(t, err)
	mdl, err := a.AddHashed(namehash.HashPath(`\Level\ship.mdl`),
		testutil.ModelPayload([]testutil.Material{{Name: "hull", Texture: "hull.img"}}, nil), false)
	require.NoError(t, err)
	img, err := a.AddHashed(namehash.HashPath(`\Level\hull.img`), testutil.ImagePayload(1, 1, []byte{0}), false)
	require.NoError(t, err)
	a.Resolve()

	model := mdl.Record().(*ModelRecord)
	require.Equal(t, img.ID(), model.Materials[0].TextureID)

	_, err = a.ReplaceEntry(toc.ID(), testutil.ChunkedPayload(testutil.Chunk{Tag: "LITE", Data: []byte{1}}))
	require.NoError(t, err)
	assert.Equal(t, -1, model.Materials[0].TextureID, "unreferenced models lose links from the previous pass")
	_, ok := model.Materials[0].Texture(a)
	assert.False(t, ok)
}

func TestEntry_Bytes(t *testing.T) {
	t.Parallel()

	a := New()
	payload := testutil.ModelPayload([]testutil.Material{{Name: "old", Texture: "t.img"}}, []byte{1, 2})
	e, err := a.Add(`\GameData\ship.mdl`, payload, false)
	require.NoError(t, err)

	data, err := e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	e.Record().(*ModelRecord).Materials[0].Name = "new"
	data, err = e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, data, "unmarked edits keep the raw bytes")

	e.MarkModified()
	data, err = e.Bytes()
	require.NoError(t, err)
	want := testutil.ModelPayload([]testutil.Material{{Name: "new", Texture: "t.img"}}, []byte{1, 2})
	assert.Equal(t, want, data)
}

func TestEntry_DisplayName(t *testing.T) {
	t.Parallel()

	a := New()
	named, err := a.Add(`\GameData\x.bin`, nil, false)
	require.NoError(t, err)
	hashed, err := a.AddHashed(0xabc, nil, false)
	require.NoError(t, err)

	assert.Equal(t, `\GameData\x.bin`, named.DisplayName())
	assert.Equal(t, "0x000abc", hashed.DisplayName())
	assert.Empty(t, hashed.FileID())
	_, ok := hashed.Path()
	assert.False(t, ok)
}

func TestEntries_Iterates(t *testing.T) {
	t.Parallel()

	a := New()
	for i := range 5 {
		_, err := a.AddHashed(uint32(i+1), nil, false)
		require.NoError(t, err)
	}

	var ids []int
	for e := range a.Entries() {
		ids = append(ids, e.ID())
		if e.ID() == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, ids)
}

func TestGlobalPaths_Copies(t *testing.T) {
	t.Parallel()

	a := New()
	paths := []string{`\GameData\one`, `\GameData\two`}
	a.SetGlobalPaths(paths)
	paths[0] = "mutated"

	got := a.GlobalPaths()
	assert.Equal(t, []string{`\GameData\one`, `\GameData\two`}, got)
	got[1] = "mutated"
	assert.Equal(t, `\GameData\two`, a.GlobalPaths()[1])
}
