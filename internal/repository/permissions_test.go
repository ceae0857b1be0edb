package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUserPermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer db.Close()
	repo := NewPostgresPermissionRepository(db)

	mock.ExpectQuery("SELECT DISTINCT p.name").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("order:cancel").AddRow("order:refund"))

	got, err := repo.UserPermissions(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"order:cancel", "order:refund"}; !reflect.DeepEqual(got, want) {
		t.Errorf("UserPermissions = %v; want %v", got, want)
	}
}

func TestUserPermissions_None(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT p.name").
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	got, err := NewPostgresPermissionRepository(db).UserPermissions(context.Background(), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("UserPermissions = %#v; want empty non-nil slice", got)
	}
}

func TestUserPermissions_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer db.Close()
	repo := NewPostgresPermissionRepository(db)

	mock.ExpectQuery("SELECT DISTINCT p.name").WillReturnError(errors.New("query failed"))
	if _, err := repo.UserPermissions(context.Background(), 1); err == nil {
		t.Error("expected query error")
	}

	mock.ExpectQuery("SELECT DISTINCT p.name").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").RowError(0, errors.New("broken row")))
	if _, err := repo.UserPermissions(context.Background(), 1); err == nil {
		t.Error("expected row error")
	}
}
