package hierarchy

// FilterKind is the closed set of list-view variants (spec §4.4).
type FilterKind int

const (
	FilterFolder FilterKind = iota
	FilterAll
	FilterFavorites
	FilterRecent
	FilterShared
	FilterTrash
)

// Filter selects which FileNode rows List returns. ParentID is only
// meaningful for FilterFolder; a nil ParentID there means the root level.
type Filter struct {
	Kind     FilterKind
	ParentID *string
}
