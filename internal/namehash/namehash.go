package namehash

import "strings"

// Separator is the directory separator used inside file ids.
const Separator = '\\'

// FileID reduces a full path to the canonical identifier that is hashed.
//
// Forward slashes become backslashes, a drive prefix ("C:") and leading
// separators are removed, empty and "." segments are dropped, and ASCII
// letters are lower-cased. The result is the same for every spelling of
// the same path.
func FileID(path string) string {
	if len(path) >= 2 && path[1] == ':' && isASCIILetter(path[0]) {
		path = path[2:]
	}
	path = strings.ReplaceAll(path, "/", `\`)

	var b strings.Builder
	b.Grow(len(path))
	for _, part := range strings.Split(path, `\`) {
		if part == "" || part == "." {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(Separator)
		}
		for i := 0; i < len(part); i++ {
			b.WriteByte(toLowerASCII(part[i]))
		}
	}
	return b.String()
}

// Hash returns the name hash of a file id.
// Case is folded before hashing so the hash is case-insensitive.
func Hash(id string) uint32 {
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(toLowerASCII(id[i]))
	}
	return h
}

// HashPath returns Hash(FileID(path)).
func HashPath(path string) uint32 {
	return Hash(FileID(path))
}

// SameFile reports whether two paths reduce to the same file id.
func SameFile(a, b string) bool {
	return FileID(a) == FileID(b)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func toLowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
