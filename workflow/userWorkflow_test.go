package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
)

func TestRegisterSupplier(t *testing.T) {
	f := newFixture(t, models.RegimeStandardWithholding)

	valid := models.NewSupplier{
		Name:   "Globex",
		TaxId:  " glx010101ab1 ",
		Phone:  "55 1234 5678",
		Regime: models.RegimeSmallTaxpayer,
	}
	s, err := f.engine.RegisterSupplier(f.ctx, f.admin.ID, valid)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.TaxId != "GLX010101AB1" || s.Phone != "+525512345678" || !s.Active() {
		t.Fatalf("unexpected supplier %+v", s)
	}

	cases := []struct {
		name    string
		actorID int
		mutate  func(in *models.NewSupplier)
		want    error
	}{
		{"duplicate tax id", f.admin.ID, func(in *models.NewSupplier) {}, utils.ErrorDuplicateTaxId},
		{"bad phone", f.admin.ID, func(in *models.NewSupplier) { in.TaxId = "BAD010101AB1"; in.Phone = "123" }, utils.ErrorInvalidInput},
		{"unknown regime", f.admin.ID, func(in *models.NewSupplier) { in.TaxId = "BAD010101AB2"; in.Regime = "barter" }, utils.ErrorInvalidInput},
		{"short tax id", f.admin.ID, func(in *models.NewSupplier) { in.TaxId = "SHORT" }, utils.ErrorInvalidInput},
		{"worker cannot register", f.worker1.ID, func(in *models.NewSupplier) { in.TaxId = "WRK010101AB1" }, utils.ErrorForbidden},
		{"supplier cannot register", f.supplierUser.ID, func(in *models.NewSupplier) { in.TaxId = "SUP010101AB1" }, utils.ErrorForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.engine.RegisterSupplier(f.ctx, tc.actorID, in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t, models.RegimeStandardWithholding)
	sid := f.supplier.ID

	cases := []struct {
		name    string
		actorID int
		input   models.NewUser
		want    error
	}{
		{"supplier user", f.admin.ID, models.NewUser{Username: "acme2", Name: "Acme Two", Password: "s3cretpass", Role: models.UserRoleSupplier, SupplierId: &sid}, nil},
		{"supplier user without supplier", f.admin.ID, models.NewUser{Username: "nosup", Name: "No Sup", Password: "s3cretpass", Role: models.UserRoleSupplier}, utils.ErrorInvalidInput},
		{"worker linked to supplier", f.admin.ID, models.NewUser{Username: "linked", Name: "Linked", Password: "s3cretpass", Role: models.UserRoleAccountingWorker, SupplierId: &sid}, utils.ErrorInvalidInput},
		{"short password", f.admin.ID, models.NewUser{Username: "short", Name: "Short", Password: "abc", Role: models.UserRoleAccountingWorker}, utils.ErrorInvalidInput},
		{"unknown role", f.admin.ID, models.NewUser{Username: "odd", Name: "Odd", Password: "s3cretpass", Role: "auditor"}, utils.ErrorInvalidInput},
		{"admin cannot create super admin", f.admin.ID, models.NewUser{Username: "boss", Name: "Boss", Password: "s3cretpass", Role: models.UserRoleSuperAdmin}, utils.ErrorForbidden},
		{"super admin creates super admin", f.superAdmin.ID, models.NewUser{Username: "boss", Name: "Boss", Password: "s3cretpass", Role: models.UserRoleSuperAdmin}, nil},
		{"worker cannot create users", f.worker1.ID, models.NewUser{Username: "w3", Name: "W3", Password: "s3cretpass", Role: models.UserRoleAccountingWorker}, utils.ErrorForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := f.engine.RegisterUser(f.ctx, tc.actorID, tc.input)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if u.Password == tc.input.Password || utils.ComparePassword(u.Password, tc.input.Password) != nil {
					t.Fatalf("password not hashed")
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterUser_OverridesApply(t *testing.T) {
	f := newFixture(t, models.RegimeStandardWithholding)
	u, err := f.engine.RegisterUser(f.ctx, f.admin.ID, models.NewUser{
		Username:  "reader",
		Name:      "Reader",
		Password:  "s3cretpass",
		Role:      models.UserRoleAccountingWorker,
		Overrides: models.PermissionGrants{"suppliers": {"create": true}},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !f.engine.Permissions.HasPermission(u, permissions.SuppliersCreate) {
		t.Fatalf("override not applied")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, models.RegimeStandardWithholding)
	u, err := f.engine.RegisterUser(f.ctx, f.admin.ID, models.NewUser{
		Username: "worker3", Name: "Worker 3", Password: "s3cretpass", Role: models.UserRoleAccountingWorker,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	info, err := f.engine.Login(f.ctx, "worker3", "s3cretpass", "10.0.0.7")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	token, err := utils.JwtValidate(info.Token)
	if err != nil || !token.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	claims := token.Claims.(*utils.JwtCustomClaim)
	if claims.ID != u.ID || claims.Role != string(models.UserRoleAccountingWorker) {
		t.Fatalf("claims %+v", claims)
	}
	stored, _ := f.store.GetUser(f.ctx, u.ID)
	if stored.LastLoginAt == nil || stored.LastLoginIP != "10.0.0.7" {
		t.Fatalf("login not recorded: %+v", stored)
	}

	for _, tc := range []struct{ username, password string }{
		{"worker3", "wrongpass"},
		{"nobody", "s3cretpass"},
	} {
		if _, err := f.engine.Login(f.ctx, tc.username, tc.password, ""); !errors.Is(err, utils.ErrorForbidden) {
			t.Fatalf("%s/%s: expected forbidden, got %v", tc.username, tc.password, err)
		}
	}

	if err := f.engine.SetUserActive(f.ctx, f.admin.ID, u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.engine.Login(f.ctx, "worker3", "s3cretpass", ""); !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("inactive user logged in: %v", err)
	}
}

func TestSetUserActive(t *testing.T) {
	f := newFixture(t, models.RegimeStandardWithholding)

	if err := f.engine.SetUserActive(f.ctx, f.worker1.ID, f.worker2.ID, false); !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("worker deactivated a user: %v", err)
	}
	if err := f.engine.SetUserActive(f.ctx, f.admin.ID, f.admin.ID, false); !errors.Is(err, utils.ErrorInvalidInput) {
		t.Fatalf("self deactivation: %v", err)
	}
	if err := f.engine.SetUserActive(f.ctx, f.admin.ID, 999, false); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	if err := f.engine.SetUserActive(f.ctx, f.admin.ID, f.worker1.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	id, err := f.engine.SelectAssignee(f.ctx)
	if err != nil || id == nil || *id != f.worker2.ID {
		t.Fatalf("expected worker2 as the only active worker, got %v %v", id, err)
	}
	if _, err := f.engine.ApplyTransition(f.ctx, f.create("INV-X").ID, models.InvoiceStatusProcessing, f.worker1.ID, ""); !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("inactive worker acted: %v", err)
	}
}
