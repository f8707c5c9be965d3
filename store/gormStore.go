package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists to MySQL. Invoice writes take SELECT ... FOR UPDATE on the invoice row.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, utils.ErrorRecordNotFound)
	}
	return err
}

func (s *GormStore) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

func findPayment(db *gorm.DB, invoiceID int) (*models.Payment, error) {
	var p models.Payment
	res := db.Where("invoice_id = ?", invoiceID).Limit(1).Find(&p)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

func (s *GormStore) GetPayment(ctx context.Context, invoiceID int) (*models.Payment, error) {
	return findPayment(s.db.WithContext(ctx), invoiceID)
}

func (s *GormStore) GetInvoiceWithPayment(ctx context.Context, id int) (*models.Invoice, *models.Payment, error) {
	var (
		inv models.Invoice
		p   *models.Payment
	)
	// both reads share one InnoDB snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inv, id).Error; err != nil {
			return notFound(err, "invoice", id)
		}
		var err error
		p, err = findPayment(tx, id)
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return &inv, p, nil
}

func (s *GormStore) GetSupplier(ctx context.Context, id int) (*models.Supplier, error) {
	var sup models.Supplier
	if err := s.db.WithContext(ctx).First(&sup, id).Error; err != nil {
		return nil, notFound(err, "supplier", id)
	}
	return &sup, nil
}

func (s *GormStore) GetUser(ctx context.Context, id int) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (s *GormStore) ListEvents(ctx context.Context, invoiceID int) ([]*models.InvoiceStateEvent, error) {
	var events []*models.InvoiceStateEvent
	err := s.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("id").Find(&events).Error
	return events, err
}

func (s *GormStore) ActiveUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	var users []*models.User
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true).
		Order("id").
		Find(&users).Error
	return users, err
}

func (s *GormStore) OpenInvoiceCounts(ctx context.Context, userIDs []int) (map[int]int, error) {
	counts := make(map[int]int, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		AssignedTo int
		Total      int
	}
	err := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Select("assigned_to, COUNT(*) AS total").
		Where("assigned_to IN ? AND status NOT IN ?", userIDs,
			[]models.InvoiceStatus{models.InvoiceStatusCompleted, models.InvoiceStatusRejected}).
		Group("assigned_to").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.AssignedTo] = r.Total
	}
	return counts, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) CreateSupplier(ctx context.Context, sup *models.Supplier) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		// locking read takes the gap lock on tax_id so concurrent registrations serialize
		err := tx.Model(&models.Supplier{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tax_id = ? AND is_active = ?", sup.TaxId, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("tax id %s: %w", sup.TaxId, utils.ErrorDuplicateTaxId)
		}
		return tx.Create(sup).Error
	})
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("user %s: %w", u.Username, utils.ErrorInvalidInput)
	}
	return err
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

func (s *GormStore) RecordLogin(ctx context.Context, userID int, at time.Time, ip string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"last_login_at": at,
		"last_login_ip": ip,
	}).Error
}

func (s *GormStore) SetUserActive(ctx context.Context, userID int, active bool) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("is_active", active).Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockInvoice(id int) (*models.Invoice, error) {
	var inv models.Invoice
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, id).Error
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

func (t *gormTx) InvoiceNumberExists(number string) (bool, error) {
	var count int64
	err := t.db.Model(&models.Invoice{}).Where("number = ?", number).Count(&count).Error
	return count > 0, err
}

func (t *gormTx) CreateInvoice(inv *models.Invoice) error {
	err := t.db.Create(inv).Error
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("invoice number %s: %w", inv.Number, utils.ErrorDuplicateNumber)
	}
	return err
}

func (t *gormTx) UpdateInvoice(inv *models.Invoice) error {
	return t.db.Save(inv).Error
}

func (t *gormTx) DeleteInvoice(id int) error {
	return t.db.Delete(&models.Invoice{}, id).Error
}

func (t *gormTx) GetPayment(invoiceID int) (*models.Payment, error) {
	return findPayment(t.db, invoiceID)
}

func (t *gormTx) SavePayment(p *models.Payment) error {
	return t.db.Save(p).Error
}

func (t *gormTx) DeletePayment(invoiceID int) error {
	return t.db.Where("invoice_id = ?", invoiceID).Delete(&models.Payment{}).Error
}

// AppendEvent runs under the invoice row lock, so the last stored event cannot
// change before the insert.
func (t *gormTx) AppendEvent(e *models.InvoiceStateEvent) error {
	var last models.InvoiceStateEvent
	if err := t.db.Where("invoice_id = ?", e.InvoiceId).
		Order("created_at desc").Order("id desc").
		Limit(1).Find(&last).Error; err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = NextEventTime(last.CreatedAt, e.CreatedAt)
	return t.db.Create(e).Error
}
