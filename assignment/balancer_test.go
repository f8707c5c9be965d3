package assignment

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

type fakeDirectory struct {
	users  map[models.UserRole][]*models.User
	counts map[int]int
	err    error
}

func (f *fakeDirectory) ActiveUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[role], nil
}

func (f *fakeDirectory) OpenInvoiceCounts(ctx context.Context, ids []int) (map[int]int, error) {
	return f.counts, nil
}

func users(role models.UserRole, ids ...int) []*models.User {
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.User{ID: id, Role: role})
	}
	return out
}

func TestSelectAssignee(t *testing.T) {
	cases := []struct {
		name   string
		dir    *fakeDirectory
		wantID int // 0 = nil
	}{
		{
			name: "least loaded, first on tie",
			dir: &fakeDirectory{
				users:  map[models.UserRole][]*models.User{models.UserRoleAccountingWorker: users(models.UserRoleAccountingWorker, 1, 2, 3)},
				counts: map[int]int{1: 4, 2: 2, 3: 2},
			},
			wantID: 2,
		},
		{
			name: "worker without invoices",
			dir: &fakeDirectory{
				users:  map[models.UserRole][]*models.User{models.UserRoleAccountingWorker: users(models.UserRoleAccountingWorker, 1, 2)},
				counts: map[int]int{1: 3},
			},
			wantID: 2,
		},
		{
			name: "falls back to first admin",
			dir: &fakeDirectory{
				users: map[models.UserRole][]*models.User{models.UserRoleAccountingAdmin: users(models.UserRoleAccountingAdmin, 9, 8)},
			},
			wantID: 9,
		},
		{
			name:   "nobody",
			dir:    &fakeDirectory{},
			wantID: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewBalancer(tc.dir).SelectAssignee(context.Background())
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.wantID == 0 {
				if got != nil {
					t.Fatalf("expected nil, got %d", got.ID)
				}
				return
			}
			if got == nil || got.ID != tc.wantID {
				t.Fatalf("got %+v want id %d", got, tc.wantID)
			}
		})
	}
}

func TestSelectAssignee_DirectoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewBalancer(&fakeDirectory{err: boom}).SelectAssignee(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
}
