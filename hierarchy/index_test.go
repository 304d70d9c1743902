package hierarchy_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

func newTestIndex(t *testing.T) (*hierarchy.Index, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&hierarchy.FileNode{}))
	return hierarchy.NewIndex(db), db
}

func createNode(t *testing.T, db *gorm.DB, ownerID string, parentID *string, name string, isDir bool) *hierarchy.FileNode {
	t.Helper()
	node := &hierarchy.FileNode{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ParentID:       parentID,
		Name:           name,
		IsDirectory:    isDir,
		LastModifiedAt: time.Now(),
	}
	require.NoError(t, db.Create(node).Error)
	return node
}

func TestEnsureUniqueNameConflict(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	createNode(t, db, ownerID, nil, "report.pdf", false)

	err := idx.EnsureUniqueName(t.Context(), ownerID, nil, "report.pdf")
	require.True(t, xfererr.Is(err, xfererr.NameConflict))
}

func TestEnsureUniqueNameIgnoresDeletedSiblings(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	node := createNode(t, db, ownerID, nil, "report.pdf", false)
	require.NoError(t, db.Delete(node).Error)

	require.NoError(t, idx.EnsureUniqueName(t.Context(), ownerID, nil, "report.pdf"))
}

func TestValidateOwnershipNotFound(t *testing.T) {
	idx, _ := newTestIndex(t)
	_, err := idx.ValidateOwnership(t.Context(), uuid.NewString(), uuid.NewString())
	require.True(t, xfererr.Is(err, xfererr.NotFound))
}

func TestValidateOwnershipWrongOwnerIsNotFound(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	node := createNode(t, db, ownerID, nil, "secret.txt", false)

	_, err := idx.ValidateOwnership(t.Context(), uuid.NewString(), node.ID)
	require.True(t, xfererr.Is(err, xfererr.NotFound))
}

func TestBreadcrumbsWalksToRoot(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	root := createNode(t, db, ownerID, nil, "root", true)
	mid := createNode(t, db, ownerID, &root.ID, "mid", true)
	leaf := createNode(t, db, ownerID, &mid.ID, "leaf.txt", false)

	path, err := idx.Breadcrumbs(t.Context(), ownerID, leaf.ParentID)
	require.NoError(t, err)
	require.Len(t, path, 2)
	require.Equal(t, root.ID, path[0].ID)
	require.Equal(t, mid.ID, path[1].ID)
}

func TestBreadcrumbsAtRootIsEmpty(t *testing.T) {
	idx, _ := newTestIndex(t)
	path, err := idx.Breadcrumbs(t.Context(), uuid.NewString(), nil)
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestDescendantsIncludesRoot(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	root := createNode(t, db, ownerID, nil, "root", true)
	childA := createNode(t, db, ownerID, &root.ID, "a.txt", false)
	createNode(t, db, ownerID, &childA.ID, "grandchild.txt", false)

	nodes, err := idx.Descendants(t.Context(), ownerID, root.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
}

func TestListFolderOrdersDirectoriesFirst(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	createNode(t, db, ownerID, nil, "zeta.txt", false)
	createNode(t, db, ownerID, nil, "alpha-dir", true)

	nodes, err := idx.List(t.Context(), ownerID, hierarchy.Filter{Kind: hierarchy.FilterFolder})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.True(t, nodes[0].IsDirectory)
	require.Equal(t, "alpha-dir", nodes[0].Name)
}

func TestListRecentExcludesDirectories(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	createNode(t, db, ownerID, nil, "dir", true)
	createNode(t, db, ownerID, nil, "file.txt", false)

	nodes, err := idx.List(t.Context(), ownerID, hierarchy.Filter{Kind: hierarchy.FilterRecent})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "file.txt", nodes[0].Name)
}

func TestListTrashOnlyReturnsDeleted(t *testing.T) {
	idx, db := newTestIndex(t)
	ownerID := uuid.NewString()
	kept := createNode(t, db, ownerID, nil, "kept.txt", false)
	trashed := createNode(t, db, ownerID, nil, "trashed.txt", false)
	require.NoError(t, db.Delete(trashed).Error)

	nodes, err := idx.List(t.Context(), ownerID, hierarchy.Filter{Kind: hierarchy.FilterTrash})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, trashed.ID, nodes[0].ID)
	require.NotEqual(t, kept.ID, nodes[0].ID)
}
