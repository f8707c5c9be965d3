package permissions

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"gopkg.in/yaml.v3"
)

// RoleGrants is the role default table.
type RoleGrants map[models.UserRole]Grants

// DefaultRoleGrants returns a fresh copy of the built-in role table.
// Super admins are not listed; they pass every check.
func DefaultRoleGrants() RoleGrants {
	return RoleGrants{
		models.UserRoleAccountingAdmin: grant(
			InvoicesView, InvoicesCreate, InvoicesEdit, InvoicesDelete,
			InvoicesAssign, InvoicesProcess, InvoicesReject, InvoicesComplete,
			PaymentsView, PaymentsCreate, PaymentsEdit, PaymentsUpload,
			SuppliersView, SuppliersCreate, SuppliersEdit, SuppliersDelete,
			UsersView, UsersCreate, UsersEdit,
		),
		models.UserRoleAccountingWorker: grant(
			InvoicesView, InvoicesProcess, InvoicesReject, InvoicesComplete,
			PaymentsView, PaymentsUpload,
		),
		models.UserRoleSupplier: grant(
			InvoicesView, InvoicesCreate, InvoicesEdit,
			PaymentsView, PaymentsUpload,
		),
	}
}

// LoadRoleGrantsYAML reads a role table of the form
//
//	accounting_worker:
//	  invoices: [view, process, reject, complete]
//	  payments: [view, upload]
//
// Unknown roles, modules or actions are rejected.
func LoadRoleGrantsYAML(r io.Reader) (RoleGrants, error) {
	var raw map[string]map[string][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode role grants: %w", err)
	}
	out := RoleGrants{}
	for roleName, modules := range raw {
		role := models.UserRole(roleName)
		if !role.IsValid() {
			return nil, fmt.Errorf("unknown role %q", roleName)
		}
		g := Grants{}
		for moduleName, actions := range modules {
			m, err := parseModule(moduleName)
			if err != nil {
				return nil, err
			}
			g[m] = map[Action]bool{}
			for _, actionName := range actions {
				a, err := parseAction(actionName)
				if err != nil {
					return nil, err
				}
				g[m][a] = true
			}
		}
		out[role] = g
	}
	return out, nil
}

// FromStored converts a persisted override table. Unknown names are ignored.
func FromStored(stored models.PermissionGrants) Grants {
	if len(stored) == 0 {
		return nil
	}
	g := Grants{}
	for moduleName, actions := range stored {
		m, err := parseModule(moduleName)
		if err != nil {
			continue
		}
		g[m] = map[Action]bool{}
		for actionName, ok := range actions {
			a, err := parseAction(actionName)
			if err != nil {
				continue
			}
			g[m][a] = ok
		}
	}
	return g
}
