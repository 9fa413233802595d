package file

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	f, err := store.Create(ctx, CreateInput{
		OwnerID:     owner,
		Name:        "Holiday.JPG",
		Size:        2048,
		ContentType: "image/jpeg",
		BlobPath:    "files/2026/01/abcd1234.jpg",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if f.ID.IsZero() {
		t.Error("ID should not be zero")
	}
	if f.FileType != models.FileTypeImage {
		t.Errorf("FileType = %q, want %q", f.FileType, models.FileTypeImage)
	}
	if f.NameCI != "holiday.jpg" {
		t.Errorf("NameCI = %q, want holiday.jpg", f.NameCI)
	}

	got, err := store.GetActive(ctx, f.ID, owner)
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if got.Size != 2048 || got.BlobPath != f.BlobPath {
		t.Errorf("GetActive() = %+v", got)
	}

	if _, err := store.GetOwned(ctx, f.ID, primitive.NewObjectID()); err != mongo.ErrNoDocuments {
		t.Errorf("GetOwned() other owner error = %v, want %v", err, mongo.ErrNoDocuments)
	}
}

func TestStore_InsertManyAndSum(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	now := time.Now().UTC()
	files := []models.File{
		NewFile(CreateInput{OwnerID: owner, Name: "a.pdf", Size: 100}, now),
		NewFile(CreateInput{OwnerID: owner, Name: "b.mp3", Size: 200}, now),
		NewFile(CreateInput{OwnerID: owner, Name: "c.mp3", Size: 300}, now),
	}
	if err := store.InsertMany(ctx, files); err != nil {
		t.Fatalf("InsertMany() error = %v", err)
	}
	store.Create(ctx, CreateInput{OwnerID: primitive.NewObjectID(), Name: "other.pdf", Size: 999})

	if err := store.Trash(ctx, files[2].ID, owner, now); err != nil {
		t.Fatalf("Trash() error = %v", err)
	}

	total, err := store.SumActiveSize(ctx, owner)
	if err != nil {
		t.Fatalf("SumActiveSize() error = %v", err)
	}
	if total != 300 {
		t.Errorf("SumActiveSize() = %d, want 300", total)
	}

	stats, err := store.StatsByType(ctx, owner)
	if err != nil {
		t.Fatalf("StatsByType() error = %v", err)
	}
	if stats[models.FileTypePDF].Count != 1 || stats[models.FileTypeMP3].Count != 1 {
		t.Errorf("StatsByType() = %+v", stats)
	}
	if stats[models.FileTypeMP3].Bytes != 200 {
		t.Errorf("mp3 bytes = %d, want 200", stats[models.FileTypeMP3].Bytes)
	}
}

func TestStore_SumActiveSize_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	total, err := store.SumActiveSize(ctx, primitive.NewObjectID())
	if err != nil {
		t.Fatalf("SumActiveSize() error = %v", err)
	}
	if total != 0 {
		t.Errorf("SumActiveSize() = %d, want 0", total)
	}
}

func TestStore_TrashAndRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	folderID := primitive.NewObjectID()
	f, _ := store.Create(ctx, CreateInput{OwnerID: owner, FolderID: &folderID, Name: "x.txt", Size: 1})

	if err := store.Trash(ctx, f.ID, owner, time.Now().UTC()); err != nil {
		t.Fatalf("Trash() error = %v", err)
	}
	if err := store.Trash(ctx, f.ID, owner, time.Now().UTC()); err != mongo.ErrNoDocuments {
		t.Errorf("second Trash() error = %v, want %v", err, mongo.ErrNoDocuments)
	}

	got, _ := store.GetOwned(ctx, f.ID, owner)
	if !got.IsDeleted || got.TrashRootID == nil || *got.TrashRootID != f.ID {
		t.Errorf("after Trash() = %+v", got)
	}

	if err := store.Restore(ctx, f.ID, owner, nil); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	got, _ = store.GetOwned(ctx, f.ID, owner)
	if got.IsDeleted || got.FolderID != nil || got.TrashRootID != nil {
		t.Errorf("after Restore() = %+v", got)
	}
}

func TestStore_FolderCascadeHelpers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	folderA := primitive.NewObjectID()
	folderB := primitive.NewObjectID()
	inA, _ := store.Create(ctx, CreateInput{OwnerID: owner, FolderID: &folderA, Name: "a.doc", Size: 1})
	inB, _ := store.Create(ctx, CreateInput{OwnerID: owner, FolderID: &folderB, Name: "b.doc", Size: 1})
	atRoot, _ := store.Create(ctx, CreateInput{OwnerID: owner, Name: "root.doc", Size: 1})

	n, err := store.TrashInFolders(ctx, owner, []primitive.ObjectID{folderA}, folderA, time.Now().UTC())
	if err != nil {
		t.Fatalf("TrashInFolders() error = %v", err)
	}
	if n != 1 {
		t.Errorf("TrashInFolders() = %d, want 1", n)
	}

	trashed, _ := store.ListTrashedInFolders(ctx, owner, []primitive.ObjectID{folderA, folderB})
	if len(trashed) != 1 || trashed[0].ID != inA.ID {
		t.Errorf("ListTrashedInFolders() = %v", trashed)
	}

	n, _ = store.DetachActiveFromFolders(ctx, owner, []primitive.ObjectID{folderA, folderB})
	if n != 1 {
		t.Errorf("DetachActiveFromFolders() = %d, want 1", n)
	}
	got, _ := store.GetOwned(ctx, inB.ID, owner)
	if got.FolderID != nil {
		t.Errorf("inB.FolderID = %v, want nil", got.FolderID)
	}

	roots, _ := store.ListByFolder(ctx, owner, nil, ListOptions{})
	if len(roots) != 2 {
		t.Errorf("ListByFolder(nil) = %d, want 2", len(roots))
	}

	n, _ = store.DeleteTrashed(ctx, owner, []primitive.ObjectID{inA.ID, atRoot.ID})
	if n != 1 {
		t.Errorf("DeleteTrashed() = %d, want 1", n)
	}
	n, _ = store.RestoreByRoot(ctx, owner, folderA)
	if n != 0 {
		t.Errorf("RestoreByRoot() after purge = %d, want 0", n)
	}
}
