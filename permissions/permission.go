package permissions

import "fmt"

type Module string

const (
	ModuleInvoices  Module = "invoices"
	ModulePayments  Module = "payments"
	ModuleSuppliers Module = "suppliers"
	ModuleUsers     Module = "users"
)

var allModules = []Module{ModuleInvoices, ModulePayments, ModuleSuppliers, ModuleUsers}

type Action string

const (
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionAssign   Action = "assign"
	ActionProcess  Action = "process"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionUpload   Action = "upload"
)

var allActions = []Action{
	ActionView, ActionCreate, ActionEdit, ActionDelete, ActionAssign,
	ActionProcess, ActionReject, ActionComplete, ActionUpload,
}

func parseModule(s string) (Module, error) {
	for _, m := range allModules {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown permission module %q", s)
}

func parseAction(s string) (Action, error) {
	for _, a := range allActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown permission action %q", s)
}

// Permission is a (module, action) pair. The fields are unexported so only the
// values declared below can be checked.
type Permission struct {
	module Module
	action Action
}

func (p Permission) Module() Module { return p.module }
func (p Permission) Action() Action { return p.action }

func (p Permission) String() string {
	return string(p.module) + "." + string(p.action)
}

var (
	InvoicesView     = Permission{ModuleInvoices, ActionView}
	InvoicesCreate   = Permission{ModuleInvoices, ActionCreate}
	InvoicesEdit     = Permission{ModuleInvoices, ActionEdit}
	InvoicesDelete   = Permission{ModuleInvoices, ActionDelete}
	InvoicesAssign   = Permission{ModuleInvoices, ActionAssign}
	InvoicesProcess  = Permission{ModuleInvoices, ActionProcess}
	InvoicesReject   = Permission{ModuleInvoices, ActionReject}
	InvoicesComplete = Permission{ModuleInvoices, ActionComplete}

	PaymentsView   = Permission{ModulePayments, ActionView}
	PaymentsCreate = Permission{ModulePayments, ActionCreate}
	PaymentsEdit   = Permission{ModulePayments, ActionEdit}
	PaymentsUpload = Permission{ModulePayments, ActionUpload}

	SuppliersView   = Permission{ModuleSuppliers, ActionView}
	SuppliersCreate = Permission{ModuleSuppliers, ActionCreate}
	SuppliersEdit   = Permission{ModuleSuppliers, ActionEdit}
	SuppliersDelete = Permission{ModuleSuppliers, ActionDelete}

	UsersView   = Permission{ModuleUsers, ActionView}
	UsersCreate = Permission{ModuleUsers, ActionCreate}
	UsersEdit   = Permission{ModuleUsers, ActionEdit}
	UsersDelete = Permission{ModuleUsers, ActionDelete}
)

// Grants is module -> action -> granted.
type Grants map[Module]map[Action]bool

func (g Grants) Has(p Permission) bool {
	if g == nil {
		return false
	}
	return g[p.module][p.action]
}

func (g Grants) clone() Grants {
	c := make(Grants, len(g))
	for m, actions := range g {
		a := make(map[Action]bool, len(actions))
		for k, v := range actions {
			a[k] = v
		}
		c[m] = a
	}
	return c
}

func grant(ps ...Permission) Grants {
	g := Grants{}
	for _, p := range ps {
		if g[p.module] == nil {
			g[p.module] = map[Action]bool{}
		}
		g[p.module][p.action] = true
	}
	return g
}
