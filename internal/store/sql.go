package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
)

// SQLStore persists contacts in a relational database through sqlx. Queries
// are written with '?' placeholders and rebound per driver, so the same store
// runs against MySQL and PostgreSQL.
//
// Every unit of work is one transaction at serializable isolation, and every
// row the reconciliation may touch is locked with SELECT ... FOR UPDATE
// before the first write. Two units racing over the same email/phone
// therefore serialize on the matched rows; the loser either waits or fails
// with a conflict the caller retries from the top.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an sqlx database handle. The handle's driver name decides
// placeholder rebinding and id retrieval ("mysql" or "postgres").
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Atomically runs fn inside one serializable transaction. A failing fn or a
// failing commit rolls the transaction back; a commit/exec failure caused by
// a concurrent transaction surfaces as ErrConflict.
func (s *SQLStore) Atomically(ctx context.Context, fn func(uow UnitOfWork) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifySQLError(err)
	}
	if err := fn(&sqlUnit{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifySQLError(err)
	}
	return nil
}

// sqlUnit implements UnitOfWork on one open transaction.
type sqlUnit struct {
	tx *sqlx.Tx
}

func (u *sqlUnit) FindByAttributes(ctx context.Context, email, phone *string) ([]model.Contact, error) {
	var conds []string
	var args []interface{}
	if email != nil {
		conds = append(conds, "email = ?")
		args = append(args, *email)
	}
	if phone != nil {
		conds = append(conds, "phone_number = ?")
		args = append(args, *phone)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	query := `SELECT * FROM contacts
		WHERE (` + strings.Join(conds, " OR ") + `) AND deleted_at IS NULL
		ORDER BY created_at, id
		FOR UPDATE`
	var contacts []model.Contact
	if err := u.tx.SelectContext(ctx, &contacts, u.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find contacts by attributes: %w", classifySQLError(err))
	}
	return contacts, nil
}

func (u *sqlUnit) FindByIds(ctx context.Context, ids []int64) ([]model.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM contacts
		WHERE id IN (?) AND deleted_at IS NULL
		ORDER BY created_at, id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("build id query: %w", err)
	}
	var contacts []model.Contact
	if err := u.tx.SelectContext(ctx, &contacts, u.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find contacts by ids: %w", classifySQLError(err))
	}
	return contacts, nil
}

func (u *sqlUnit) FindGroupMembers(ctx context.Context, primaryId int64) ([]model.Contact, error) {
	query := `SELECT * FROM contacts
		WHERE (id = ? OR linked_id = ?) AND deleted_at IS NULL
		ORDER BY created_at, id
		FOR UPDATE`
	var contacts []model.Contact
	if err := u.tx.SelectContext(ctx, &contacts, u.tx.Rebind(query), primaryId, primaryId); err != nil {
		return nil, fmt.Errorf("find group members: %w", classifySQLError(err))
	}
	return contacts, nil
}

func (u *sqlUnit) CreateContact(ctx context.Context, email, phone *string, linkedId *int64, precedence string) (model.Contact, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	contact := model.Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkedId:       linkedId,
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	insert := `INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	// MySQL reports the assigned id through LastInsertId, PostgreSQL only
	// through RETURNING.
	if u.tx.DriverName() == "postgres" {
		query := u.tx.Rebind(insert + " RETURNING id")
		if err := u.tx.QueryRowContext(ctx, query, email, phone, linkedId, precedence, now, now).Scan(&contact.Id); err != nil {
			return model.Contact{}, fmt.Errorf("create contact: %w", classifySQLError(err))
		}
		return contact, nil
	}
	result, err := u.tx.ExecContext(ctx, u.tx.Rebind(insert), email, phone, linkedId, precedence, now, now)
	if err != nil {
		return model.Contact{}, fmt.Errorf("create contact: %w", classifySQLError(err))
	}
	contact.Id, err = result.LastInsertId()
	if err != nil {
		return model.Contact{}, fmt.Errorf("read assigned contact id: %w", classifySQLError(err))
	}
	return contact, nil
}

func (u *sqlUnit) DemoteToSecondary(ctx context.Context, ids []int64, newPrimaryId int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE contacts
		SET link_precedence = 'secondary', linked_id = ?, updated_at = ?
		WHERE id IN (?)`, newPrimaryId, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build demote query: %w", err)
	}
	if _, err := u.tx.ExecContext(ctx, u.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("demote contacts: %w", classifySQLError(err))
	}
	return nil
}

func (u *sqlUnit) ReparentSecondaries(ctx context.Context, oldPrimaryIds []int64, newPrimaryId int64) error {
	if len(oldPrimaryIds) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE contacts
		SET linked_id = ?, updated_at = ?
		WHERE linked_id IN (?) AND deleted_at IS NULL`, newPrimaryId, time.Now().UTC(), oldPrimaryIds)
	if err != nil {
		return fmt.Errorf("build reparent query: %w", err)
	}
	if _, err := u.tx.ExecContext(ctx, u.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("reparent secondaries: %w", classifySQLError(err))
	}
	return nil
}

// classifySQLError folds driver-specific failures into the store error
// taxonomy: serialization failures and deadlocks become ErrConflict,
// connectivity and timeout failures become ErrUnavailable. Everything else
// passes through unchanged.
func classifySQLError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213 deadlock, 1205 lock wait timeout
		if mysqlErr.Number == 1213 || mysqlErr.Number == 1205 {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
