package workflow

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/sirupsen/logrus"
)

func (e *Engine) RegisterSupplier(ctx context.Context, actorID int, input models.NewSupplier) (*models.Supplier, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !e.Permissions.HasPermission(actor, permissions.SuppliersCreate) {
		return nil, forbidden("user %d cannot register suppliers", actorID)
	}
	input.TaxId = strings.ToUpper(strings.TrimSpace(input.TaxId))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Regime.IsValid() {
		return nil, fmt.Errorf("regime %q: %w", input.Regime, utils.ErrorInvalidInput)
	}
	phone := strings.TrimSpace(input.Phone)
	if phone != "" {
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			return nil, fmt.Errorf("phone %q: %v: %w", phone, err, utils.ErrorInvalidInput)
		}
		phone = utils.FormatPhoneNumber(phone, utils.CountryCode)
	}

	supplier := &models.Supplier{
		Name:        strings.TrimSpace(input.Name),
		TaxId:       input.TaxId,
		Email:       input.Email,
		Phone:       phone,
		Address:     input.Address,
		BankName:    input.BankName,
		BankAccount: input.BankAccount,
		Regime:      input.Regime,
		IsActive:    utils.NewTrue(),
	}
	if err := e.Store.CreateSupplier(ctx, supplier); err != nil {
		return nil, err
	}
	e.Logger.WithFields(logrus.Fields{
		"field":       "RegisterSupplier",
		"supplier_id": supplier.ID,
		"regime":      supplier.Regime,
		"actor_id":    actorID,
	}).Info("supplier registered")
	return supplier, nil
}
