package workflow

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// RegisterUser creates a user. A supplier user must point at an active supplier;
// other roles must not point at any.
func (e *Engine) RegisterUser(ctx context.Context, actorID int, input models.NewUser) (*models.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !e.Permissions.HasPermission(actor, permissions.UsersCreate) {
		return nil, forbidden("user %d cannot create users", actorID)
	}
	if input.Role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
		return nil, forbidden("only super admins create super admins")
	}
	return CreateUser(ctx, e.Store, input)
}

type userWriter interface {
	GetSupplier(ctx context.Context, id int) (*models.Supplier, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// CreateUser validates and stores a user without an acting user. It backs
// RegisterUser and the seed-admin command.
func CreateUser(ctx context.Context, st userWriter, input models.NewUser) (*models.User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("role %q: %w", input.Role, utils.ErrorInvalidInput)
	}
	if input.Role == models.UserRoleSupplier {
		if input.SupplierId == nil {
			return nil, fmt.Errorf("supplier users need a supplier: %w", utils.ErrorInvalidInput)
		}
		supplier, err := st.GetSupplier(ctx, *input.SupplierId)
		if err != nil {
			return nil, err
		}
		if !supplier.Active() {
			return nil, fmt.Errorf("supplier %d is inactive: %w", supplier.ID, utils.ErrorInvalidInput)
		}
	} else if input.SupplierId != nil {
		return nil, fmt.Errorf("only supplier users link to a supplier: %w", utils.ErrorInvalidInput)
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, utils.ErrorInvalidInput)
	}
	u := &models.User{
		Username:   strings.TrimSpace(input.Username),
		Name:       strings.TrimSpace(input.Name),
		Password:   string(hashed),
		Role:       input.Role,
		SupplierId: input.SupplierId,
		IsActive:   utils.NewTrue(),
	}
	if input.Email != "" {
		email := strings.ToLower(strings.TrimSpace(input.Email))
		u.Email = &email
	}
	if len(input.Overrides) > 0 {
		u.Permissions = datatypes.NewJSONType(input.Overrides)
	}
	if err := st.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

type LoginInfo struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login checks the password and records the login time and address.
func (e *Engine) Login(ctx context.Context, username, password, ip string) (*LoginInfo, error) {
	u, err := e.Store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if isNotFound(err) {
			return nil, forbidden("invalid username or password")
		}
		return nil, err
	}
	if !u.Active() || utils.ComparePassword(u.Password, password) != nil {
		return nil, forbidden("invalid username or password")
	}
	token, err := utils.JwtGenerate(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if err := e.Store.RecordLogin(ctx, u.ID, now, ip); err != nil {
		e.Logger.WithFields(logrus.Fields{
			"field":   "Login",
			"user_id": u.ID,
		}).Error("record login: " + err.Error())
	} else {
		u.LastLoginAt = &now
		u.LastLoginIP = ip
	}
	return &LoginInfo{Token: token, User: u}, nil
}

// SetUserActive activates or deactivates a user. Deactivated workers stop
// receiving new assignments; their open invoices keep their owner.
func (e *Engine) SetUserActive(ctx context.Context, actorID, userID int, active bool) error {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if !e.Permissions.HasPermission(actor, permissions.UsersEdit) {
		return forbidden("user %d cannot edit users", actorID)
	}
	if actorID == userID && !active {
		return fmt.Errorf("users cannot deactivate themselves: %w", utils.ErrorInvalidInput)
	}
	return e.Store.SetUserActive(ctx, userID, active)
}
