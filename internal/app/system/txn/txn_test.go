package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"standalone code", mongo.CommandError{Code: 20, Message: "x"}, true},
		{"illegal operation code", mongo.CommandError{Code: 51}, true},
		{"other code", mongo.CommandError{Code: 11000, Message: "duplicate key"}, false},
		{"keywords", errors.New("Transaction numbers are only allowed on a replica set member or mongos"), true},
		{"single keyword", errors.New("session expired"), false},
		{"unrelated", errors.New("storage quota exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUndo_RollbackReverseOrder(t *testing.T) {
	var order []int
	u := &Undo{}
	for i := 1; i <= 3; i++ {
		i := i
		u.Add(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}
	if u.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", u.Len())
	}

	if err := u.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("rollback order = %v, want [3 2 1]", order)
	}
	if u.Len() != 0 {
		t.Errorf("Len() after rollback = %d, want 0", u.Len())
	}
}

func TestUndo_RollbackRunsAllSteps(t *testing.T) {
	first := errors.New("first")
	ran := 0
	u := &Undo{}
	u.Add(func(context.Context) error { ran++; return nil })
	u.Add(func(context.Context) error { ran++; return first })
	u.Add(func(context.Context) error { ran++; return errors.New("last") })

	err := u.Rollback(context.Background())
	if ran != 3 {
		t.Errorf("ran %d steps, want 3", ran)
	}
	// Steps run in reverse, so the step registered last fails first.
	if err == nil || err.Error() != "last" {
		t.Errorf("Rollback() error = %v, want last", err)
	}
}

func TestSupported_AnswersForTestDeployment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Either topology is fine; the hello command itself must succeed.
	if _, err := Supported(ctx, db.Client()); err != nil {
		t.Fatalf("Supported() error = %v", err)
	}
}
