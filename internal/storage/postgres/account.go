package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrAccountNotFound is returned when no account has the given mail.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the mail is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for an empty mail or password.
	ErrInvalidInput = errors.New("mail and password are required")
)

// Account is a stored credential record.
type Account struct {
	ID           uuid.UUID
	Mail         string
	PasswordHash string
	CreatedAt    time.Time
}

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AccountRepository persists credentials in the accounts table.
type AccountRepository struct {
	db Querier
}

// NewAccountRepository creates a repository over db.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// NormalizeMail lowercases and trims a mail address for storage and lookup.
func NormalizeMail(mail string) string {
	return strings.ToLower(strings.TrimSpace(mail))
}

// Create stores a new account with a fresh id and a bcrypt hash of password.
//
// Postcondition: Returns the stored Account, ErrAccountExists if mail is taken,
// or ErrInvalidInput if either argument is empty.
func (r *AccountRepository) Create(ctx context.Context, mail, password string) (Account, error) {
	mail = NormalizeMail(mail)
	if mail == "" || password == "" {
		return Account{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	acct := Account{ID: uuid.New(), Mail: mail, PasswordHash: hash}
	err = r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, mail, password_hash)
		 VALUES ($1::uuid, $2, $3)
		 RETURNING created_at`,
		acct.ID.String(), acct.Mail, acct.PasswordHash,
	).Scan(&acct.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return acct, nil
}

// Exists reports whether an account is registered under mail.
func (r *AccountRepository) Exists(ctx context.Context, mail string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE mail = $1)`,
		NormalizeMail(mail),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking account: %w", err)
	}
	return exists, nil
}

// Verify checks password against the account stored under mail.
//
// Postcondition: Returns the Account if the credentials match,
// ErrAccountNotFound if mail is unknown, or ErrInvalidCredentials.
func (r *AccountRepository) Verify(ctx context.Context, mail, password string) (Account, error) {
	var (
		acct Account
		id   string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id::text, mail, password_hash, created_at
		 FROM accounts WHERE mail = $1`,
		NormalizeMail(mail),
	).Scan(&id, &acct.Mail, &acct.PasswordHash, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	if acct.ID, err = uuid.Parse(id); err != nil {
		return Account{}, fmt.Errorf("parsing account id %q: %w", id, err)
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Delete removes the account after verifying its credentials.
//
// Postcondition: Returns nil once the row is gone, or the Verify error.
func (r *AccountRepository) Delete(ctx context.Context, mail, password string) error {
	acct, err := r.Verify(ctx, mail, password)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1::uuid`, acct.ID.String())
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty and at most 72 bytes.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError reports a unique constraint violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
