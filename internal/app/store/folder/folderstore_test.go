package folder

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNew(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	if store == nil {
		t.Fatal("New() returned nil")
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	input := CreateInput{
		Name:    "Test Folder",
		OwnerID: primitive.NewObjectID(),
	}

	folder, err := store.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if folder.ID.IsZero() {
		t.Error("ID should not be zero")
	}
	if folder.Name != input.Name {
		t.Errorf("Name = %v, want %v", folder.Name, input.Name)
	}
	if folder.NameCI != "test folder" {
		t.Errorf("NameCI = %q, want %q", folder.NameCI, "test folder")
	}
	if folder.ParentID != nil {
		t.Error("ParentID should be nil for root folder")
	}
	if folder.IsDeleted {
		t.Error("new folder should not be deleted")
	}
}

func TestStore_GetOwned_OtherOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	created, _ := store.Create(ctx, CreateInput{Name: "Mine", OwnerID: owner})

	got, err := store.GetOwned(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("GetOwned() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %v, want %v", got.ID, created.ID)
	}

	_, err = store.GetOwned(ctx, created.ID, primitive.NewObjectID())
	if err != mongo.ErrNoDocuments {
		t.Errorf("GetOwned() for other owner error = %v, want %v", err, mongo.ErrNoDocuments)
	}
}

func TestStore_RenameAndSetParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	a, _ := store.Create(ctx, CreateInput{Name: "A", OwnerID: owner})
	b, _ := store.Create(ctx, CreateInput{Name: "B", OwnerID: owner})

	if err := store.Rename(ctx, a.ID, owner, "Renamed"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := store.SetParent(ctx, a.ID, owner, &b.ID); err != nil {
		t.Fatalf("SetParent() error = %v", err)
	}

	got, _ := store.GetOwned(ctx, a.ID, owner)
	if got.Name != "Renamed" || got.NameCI != "renamed" {
		t.Errorf("Name = %q/%q, want Renamed/renamed", got.Name, got.NameCI)
	}
	if got.ParentID == nil || *got.ParentID != b.ID {
		t.Errorf("ParentID = %v, want %v", got.ParentID, b.ID)
	}

	if err := store.Rename(ctx, a.ID, primitive.NewObjectID(), "x"); err != mongo.ErrNoDocuments {
		t.Errorf("Rename() other owner error = %v, want %v", err, mongo.ErrNoDocuments)
	}
}

func TestStore_ListByParent_OrderAndFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	first, _ := store.Create(ctx, CreateInput{Name: "first", OwnerID: owner})
	time.Sleep(5 * time.Millisecond)
	second, _ := store.Create(ctx, CreateInput{Name: "second", OwnerID: owner})
	trashed, _ := store.Create(ctx, CreateInput{Name: "trashed", OwnerID: owner})
	store.Create(ctx, CreateInput{Name: "nested", ParentID: &first.ID, OwnerID: owner})
	store.Create(ctx, CreateInput{Name: "foreign", OwnerID: primitive.NewObjectID()})

	if _, err := store.Trash(ctx, owner, []primitive.ObjectID{trashed.ID}, trashed.ID, time.Now().UTC()); err != nil {
		t.Fatalf("Trash() error = %v", err)
	}

	roots, err := store.ListByParent(ctx, owner, nil, ListOptions{})
	if err != nil {
		t.Fatalf("ListByParent() error = %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("ListByParent() returned %d folders, want 2", len(roots))
	}
	if roots[0].ID != second.ID || roots[1].ID != first.ID {
		t.Errorf("ListByParent() order = [%s %s], want newest first", roots[0].Name, roots[1].Name)
	}

	again, _ := store.ListByParent(ctx, owner, nil, ListOptions{})
	for i := range roots {
		if roots[i].ID != again[i].ID {
			t.Errorf("repeated listing differs at %d", i)
		}
	}

	children, _ := store.ListByParent(ctx, owner, &first.ID, ListOptions{})
	if len(children) != 1 || children[0].Name != "nested" {
		t.Errorf("children = %v, want [nested]", children)
	}
}

func TestStore_TrashRestoreByRoot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	root, _ := store.Create(ctx, CreateInput{Name: "root", OwnerID: owner})
	child, _ := store.Create(ctx, CreateInput{Name: "child", ParentID: &root.ID, OwnerID: owner})

	n, err := store.Trash(ctx, owner, []primitive.ObjectID{root.ID, child.ID}, root.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Trash() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Trash() modified %d, want 2", n)
	}

	// A second trash of the same rows is a no-op.
	n, _ = store.Trash(ctx, owner, []primitive.ObjectID{root.ID, child.ID}, root.ID, time.Now().UTC())
	if n != 0 {
		t.Errorf("second Trash() modified %d, want 0", n)
	}

	got, _ := store.GetOwned(ctx, child.ID, owner)
	if !got.IsDeleted || got.DeletedAt == nil || got.TrashRootID == nil || *got.TrashRootID != root.ID {
		t.Errorf("child after trash = %+v", got)
	}
	if _, err := store.GetActive(ctx, child.ID, owner); err != mongo.ErrNoDocuments {
		t.Errorf("GetActive() on trashed error = %v, want %v", err, mongo.ErrNoDocuments)
	}

	trashed, _ := store.ListTrashed(ctx, owner)
	if len(trashed) != 2 {
		t.Errorf("ListTrashed() = %d, want 2", len(trashed))
	}

	n, err = store.RestoreByRoot(ctx, owner, root.ID)
	if err != nil {
		t.Fatalf("RestoreByRoot() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RestoreByRoot() modified %d, want 2", n)
	}
	got, _ = store.GetOwned(ctx, child.ID, owner)
	if got.IsDeleted || got.DeletedAt != nil || got.TrashRootID != nil {
		t.Errorf("child after restore = %+v", got)
	}
}

func TestStore_RestoreOnlyTouchesTrashed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	active, _ := store.Create(ctx, CreateInput{Name: "active", OwnerID: owner})
	a, _ := store.Create(ctx, CreateInput{Name: "a", OwnerID: owner})
	b, _ := store.Create(ctx, CreateInput{Name: "b", OwnerID: owner})
	store.Trash(ctx, owner, []primitive.ObjectID{a.ID, b.ID}, a.ID, time.Now().UTC())

	n, err := store.Restore(ctx, owner, []primitive.ObjectID{active.ID, a.ID})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Restore() modified %d, want 1", n)
	}

	got, _ := store.GetOwned(ctx, a.ID, owner)
	if got.IsDeleted || got.TrashRootID != nil {
		t.Errorf("a after restore = %+v", got)
	}
	got, _ = store.GetOwned(ctx, b.ID, owner)
	if !got.IsDeleted {
		t.Error("b should still be trashed")
	}

	// Another owner cannot restore.
	n, _ = store.Restore(ctx, primitive.NewObjectID(), []primitive.ObjectID{b.ID})
	if n != 0 {
		t.Errorf("Restore() by other owner modified %d, want 0", n)
	}
}

func TestStore_DeleteTrashedOnlyRemovesTrashed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	active, _ := store.Create(ctx, CreateInput{Name: "active", OwnerID: owner})
	gone, _ := store.Create(ctx, CreateInput{Name: "gone", OwnerID: owner})
	store.Trash(ctx, owner, []primitive.ObjectID{gone.ID}, gone.ID, time.Now().UTC())

	n, err := store.DeleteTrashed(ctx, owner, []primitive.ObjectID{active.ID, gone.ID})
	if err != nil {
		t.Fatalf("DeleteTrashed() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteTrashed() removed %d, want 1", n)
	}
	if _, err := store.GetOwned(ctx, active.ID, owner); err != nil {
		t.Errorf("active folder should survive, got %v", err)
	}
}

func TestStore_DetachActiveChildren(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	parent, _ := store.Create(ctx, CreateInput{Name: "parent", OwnerID: owner})
	kid, _ := store.Create(ctx, CreateInput{Name: "kid", ParentID: &parent.ID, OwnerID: owner})

	n, err := store.DetachActiveChildren(ctx, owner, []primitive.ObjectID{parent.ID})
	if err != nil {
		t.Fatalf("DetachActiveChildren() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DetachActiveChildren() modified %d, want 1", n)
	}
	got, _ := store.GetOwned(ctx, kid.ID, owner)
	if got.ParentID != nil {
		t.Errorf("ParentID = %v, want nil", got.ParentID)
	}
}

func TestStore_NodesAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	a, _ := store.Create(ctx, CreateInput{Name: "a", OwnerID: owner})
	b, _ := store.Create(ctx, CreateInput{Name: "b", ParentID: &a.ID, OwnerID: owner})
	store.Trash(ctx, owner, []primitive.ObjectID{b.ID}, b.ID, time.Now().UTC())

	nodes, err := store.Nodes(ctx, owner)
	if err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Nodes() = %d, want 2", len(nodes))
	}
	for _, n := range nodes {
		if n.ID == b.ID && (!n.IsDeleted || n.ParentID == nil || *n.ParentID != a.ID) {
			t.Errorf("node b = %+v", n)
		}
	}

	count, err := store.CountActive(ctx, owner)
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountActive() = %d, want 1", count)
	}
}

func TestStore_GetAncestors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()

	// Create hierarchy: root -> level1 -> level2
	root, _ := store.Create(ctx, CreateInput{Name: "Root", OwnerID: owner})
	level1, _ := store.Create(ctx, CreateInput{Name: "Level1", ParentID: &root.ID, OwnerID: owner})
	level2, _ := store.Create(ctx, CreateInput{Name: "Level2", ParentID: &level1.ID, OwnerID: owner})

	ancestors, err := store.GetAncestors(ctx, level2.ID, owner)
	if err != nil {
		t.Fatalf("GetAncestors() error = %v", err)
	}

	if len(ancestors) != 2 {
		t.Fatalf("GetAncestors() returned %d, want 2", len(ancestors))
	}
	if ancestors[0].Name != "Root" {
		t.Errorf("ancestors[0] = %v, want Root", ancestors[0].Name)
	}
	if ancestors[1].Name != "Level1" {
		t.Errorf("ancestors[1] = %v, want Level1", ancestors[1].Name)
	}

	// Root has no ancestors
	ancestors, _ = store.GetAncestors(ctx, root.ID, owner)
	if len(ancestors) != 0 {
		t.Errorf("GetAncestors() for root returned %d, want 0", len(ancestors))
	}
}
