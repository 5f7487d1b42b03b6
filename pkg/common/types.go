package common

import (
	"io/fs"
	"strings"
	"time"

	"github.com/tidwall/btree"
)

// EdzNode is a single regular file inside an archive payload.
type EdzNode struct {
	Path       string // slash separated, relative to the packed root
	SourcePath string // absolute path on disk, empty for nodes read back from a payload
	Size       int64
	Mode       fs.FileMode
	ModTime    time.Time
}

func NewIndex() *btree.BTree {
	compare := func(a, b interface{}) bool {
		return a.(*EdzNode).Path < b.(*EdzNode).Path
	}
	return btree.New(compare)
}

type EdzArchiveMetadata struct {
	Header EdzArchiveHeader
	Index  *btree.BTree
}

func (m *EdzArchiveMetadata) Insert(node *EdzNode) {
	m.Index.Set(node)
}

func (m *EdzArchiveMetadata) Get(path string) *EdzNode {
	item := m.Index.Get(&EdzNode{Path: path})
	if item == nil {
		return nil
	}
	return item.(*EdzNode)
}

// Names returns every entry path in ascending order.
func (m *EdzArchiveMetadata) Names() []string {
	names := make([]string, 0, m.Index.Len())
	if m.Index.Len() == 0 {
		return names
	}

	m.Index.Ascend(m.Index.Min(), func(a interface{}) bool {
		names = append(names, a.(*EdzNode).Path)
		return true
	})
	return names
}

// TotalSize is the sum of uncompressed entry sizes.
func (m *EdzArchiveMetadata) TotalSize() int64 {
	var total int64
	if m.Index.Len() == 0 {
		return total
	}

	m.Index.Ascend(m.Index.Min(), func(a interface{}) bool {
		total += a.(*EdzNode).Size
		return true
	})
	return total
}

// ListDirectory returns the immediate children of dir. Directories are
// implied by entry paths and are returned with a trailing '/'.
func (m *EdzArchiveMetadata) ListDirectory(dir string) []string {
	dir = strings.Trim(dir, "/")
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := map[string]bool{}
	var children []string
	if m.Index.Len() == 0 {
		return children
	}

	// \x00 sorts below every other byte, so the pivot lands on the first child
	m.Index.Ascend(&EdzNode{Path: prefix + "\x00"}, func(a interface{}) bool {
		node := a.(*EdzNode)
		if !strings.HasPrefix(node.Path, prefix) {
			return false
		}

		rest := node.Path[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}

		if rest != "" && !seen[rest] {
			seen[rest] = true
			children = append(children, rest)
		}
		return true
	})
	return children
}
