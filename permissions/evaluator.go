package permissions

import "bitbucket.org/mmdatafocus/invoice_backend/models"

// Evaluator answers permission and ownership questions. It holds no mutable state.
type Evaluator struct {
	roles RoleGrants
}

func NewEvaluator(roles RoleGrants) *Evaluator {
	if roles == nil {
		roles = DefaultRoleGrants()
	}
	c := make(RoleGrants, len(roles))
	for r, g := range roles {
		c[r] = g.clone()
	}
	return &Evaluator{roles: c}
}

// HasPermission: super admins pass; a user with overrides is judged by the
// overrides alone; otherwise the role default applies. Inactive users have nothing.
func (e *Evaluator) HasPermission(user *models.User, p Permission) bool {
	if user == nil || !user.Active() {
		return false
	}
	if user.Role == models.UserRoleSuperAdmin {
		return true
	}
	if overrides := FromStored(user.Overrides()); overrides != nil {
		return overrides.Has(p)
	}
	return e.roles[user.Role].Has(p)
}

func (e *Evaluator) HasAllPermissions(user *models.User, ps ...Permission) bool {
	for _, p := range ps {
		if !e.HasPermission(user, p) {
			return false
		}
	}
	return true
}

func (e *Evaluator) HasAnyPermission(user *models.User, ps ...Permission) bool {
	for _, p := range ps {
		if e.HasPermission(user, p) {
			return true
		}
	}
	return false
}

func IsAdmin(user *models.User) bool {
	return user != nil && (user.Role == models.UserRoleSuperAdmin || user.Role == models.UserRoleAccountingAdmin)
}

// OwnsInvoice reports whether the invoice is within the user's scope.
func (e *Evaluator) OwnsInvoice(user *models.User, inv *models.Invoice) bool {
	if user == nil || inv == nil || !user.Active() {
		return false
	}
	switch user.Role {
	case models.UserRoleSuperAdmin, models.UserRoleAccountingAdmin:
		return true
	case models.UserRoleAccountingWorker:
		return inv.AssignedTo != nil && *inv.AssignedTo == user.ID
	case models.UserRoleSupplier:
		return user.SupplierId != nil && *user.SupplierId == inv.SupplierId
	}
	return false
}

// TransitionPermission is the permission needed to move an invoice into target.
func TransitionPermission(target models.InvoiceStatus) Permission {
	switch target {
	case models.InvoiceStatusAssigned:
		return InvoicesAssign
	case models.InvoiceStatusRejected:
		return InvoicesReject
	case models.InvoiceStatusCompleted:
		return InvoicesComplete
	case models.InvoiceStatusSubmitted:
		return InvoicesEdit
	}
	return InvoicesProcess
}

// CanTransition is the role guard for status changes. It does not look at the
// transition table.
func (e *Evaluator) CanTransition(user *models.User, inv *models.Invoice, target models.InvoiceStatus) bool {
	if user == nil || inv == nil || !user.Active() {
		return false
	}
	p := TransitionPermission(target)
	switch user.Role {
	case models.UserRoleSupplier:
		return false
	case models.UserRoleAccountingWorker:
		return e.OwnsInvoice(user, inv) && e.HasPermission(user, p)
	}
	return e.HasPermission(user, p)
}

func (e *Evaluator) CanUploadDocument(user *models.User, inv *models.Invoice) bool {
	return e.HasPermission(user, PaymentsUpload) && e.OwnsInvoice(user, inv)
}

// CanEditInvoice: owning supplier or an invoices.edit holder in scope.
func (e *Evaluator) CanEditInvoice(user *models.User, inv *models.Invoice) bool {
	return e.HasPermission(user, InvoicesEdit) && e.OwnsInvoice(user, inv)
}
