package assignment

import (
	"context"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

// Directory is the read side the balancer needs.
type Directory interface {
	// ActiveUsersByRole returns active users of role ordered by id.
	ActiveUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)
	// OpenInvoiceCounts returns, per user id, how many invoices assigned to that
	// user are neither completed nor rejected. Missing ids count as zero.
	OpenInvoiceCounts(ctx context.Context, userIDs []int) (map[int]int, error)
}

type Balancer struct {
	dir Directory
}

func NewBalancer(dir Directory) *Balancer {
	return &Balancer{dir: dir}
}

// SelectAssignee picks the active accounting worker with the fewest open
// invoices, first one wins ties. Without workers it falls back to the first
// active accounting admin. It returns nil when nobody qualifies.
func (b *Balancer) SelectAssignee(ctx context.Context) (*models.User, error) {
	workers, err := b.dir.ActiveUsersByRole(ctx, models.UserRoleAccountingWorker)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		admins, err := b.dir.ActiveUsersByRole(ctx, models.UserRoleAccountingAdmin)
		if err != nil {
			return nil, err
		}
		if len(admins) == 0 {
			return nil, nil
		}
		return admins[0], nil
	}

	ids := make([]int, 0, len(workers))
	for _, w := range workers {
		ids = append(ids, w.ID)
	}
	counts, err := b.dir.OpenInvoiceCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	return pickLeastLoaded(workers, counts), nil
}

func pickLeastLoaded(workers []*models.User, counts map[int]int) *models.User {
	var best *models.User
	bestCount := 0
	for _, w := range workers {
		c := counts[w.ID]
		if best == nil || c < bestCount {
			best, bestCount = w, c
		}
	}
	return best
}
