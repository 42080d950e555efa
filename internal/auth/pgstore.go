package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"credledger.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. It is the transactional swap-in
// for the flat-file store; the schema lives under migrations/.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

const accountColumns = `id, username, email, password_hash, role, department, is_active, created_at, updated_at`

func (s *PGStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.findBy(ctx, "id", id)
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.findBy(ctx, "username", username)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findBy(ctx, "email", email)
}

func (s *PGStore) findBy(ctx context.Context, column, value string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from accounts where %s=$1`, accountColumns, column), value)
	return scanAccount(row)
}

func (s *PGStore) Insert(ctx context.Context, acc *Account) error {
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	now := s.now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, email, password_hash, role, department, is_active, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		acc.ID, acc.Username, acc.Email, acc.PasswordHash, acc.Role,
		nullableString(acc.Department), acc.IsActive, acc.CreatedAt, acc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// Update locks the row, applies mutate and writes the result back in one
// transaction.
func (s *PGStore) Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from accounts where id=$1 for update`, accountColumns), id)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if err := mutate(acc); err != nil {
		return nil, err
	}
	acc.ID = id
	acc.UpdatedAt = s.now().UTC()
	_, err = tx.ExecContext(ctx,
		`update accounts set username=$2, email=$3, password_hash=$4, role=$5, department=$6, is_active=$7, updated_at=$8 where id=$1`,
		acc.ID, acc.Username, acc.Email, acc.PasswordHash, acc.Role,
		nullableString(acc.Department), acc.IsActive, acc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	query := `select ` + accountColumns + ` from accounts`
	var (
		clauses []string
		args    []any
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			acc        Account
			department sql.NullString
		)
		if err := rows.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash,
			&acc.Role, &department, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		acc.Department = department.String
		accounts = append(accounts, acc.Sanitized())
	}
	return accounts, rows.Err()
}

func scanAccount(row *sql.Row) (*Account, error) {
	var (
		acc        Account
		department sql.NullString
	)
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash,
		&acc.Role, &department, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	acc.Department = department.String
	return &acc, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
