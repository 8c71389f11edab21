/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the single `accounts` table that backs the
 * account document store: read one document by id, create the initial document,
 * and apply partial-field updates whose SET list is built only from the fields
 * the patch actually carries.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zpdl768/apptech-wallet-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrEmptyPatch      = errors.New("account patch has no fields set")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetAccount reads one account document by id.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (*domain.UserAccount, error) {
	query := `
		SELECT id, email, total_cash, today_char_count, collected_cash,
		       daily_cash_earned, box_states, last_reset_date, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var acct domain.UserAccount
	var boxStatesRaw []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&acct.ID,
		&acct.Email,
		&acct.TotalCash,
		&acct.TodayCharCount,
		&acct.CollectedCash,
		&acct.DailyCashEarned,
		&boxStatesRaw,
		&acct.LastResetDate,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account %s: %w", id, err)
	}

	if err := json.Unmarshal(boxStatesRaw, &acct.BoxStates); err != nil {
		return nil, fmt.Errorf("decode box states for account %s: %w", id, err)
	}
	// A document written before a schema migration may carry unknown state
	// tokens; repair them from the thresholds instead of failing the read.
	acct.NormalizeBoxStates()

	return &acct, nil
}

// CreateAccount writes the initial all-zero document created on first authentication.
func (r *PostgresRepository) CreateAccount(ctx context.Context, acct *domain.UserAccount) error {
	boxStatesRaw, err := json.Marshal(acct.BoxStates)
	if err != nil {
		return fmt.Errorf("encode box states: %w", err)
	}

	query := `
		INSERT INTO accounts (id, email, total_cash, today_char_count, collected_cash,
		                      daily_cash_earned, box_states, last_reset_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		acct.ID,
		acct.Email,
		acct.TotalCash,
		acct.TodayCharCount,
		acct.CollectedCash,
		acct.DailyCashEarned,
		boxStatesRaw,
		acct.LastResetDate,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountExists
		}
		return fmt.Errorf("insert account %s: %w", acct.ID, err)
	}
	return nil
}

// UpdateAccountFields applies a partial-field update to one account.
func (r *PostgresRepository) UpdateAccountFields(ctx context.Context, id string, patch AccountPatch) error {
	setClauses, args, err := buildAccountPatch(patch)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", setClauses, len(args)+1)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// buildAccountPatch renders the SET list for a partial update, numbering the
// placeholders from $1. Kept free of pgx types so it is testable as a pure
// helper.
func buildAccountPatch(patch AccountPatch) (string, []interface{}, error) {
	var clauses string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		if clauses != "" {
			clauses += ", "
		}
		clauses += fmt.Sprintf("%s = $%d", column, len(args))
	}

	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.TotalCash != nil {
		add("total_cash", *patch.TotalCash)
	}
	if patch.TodayCharCount != nil {
		add("today_char_count", *patch.TodayCharCount)
	}
	if patch.CollectedCash != nil {
		add("collected_cash", *patch.CollectedCash)
	}
	if patch.DailyCashEarned != nil {
		add("daily_cash_earned", *patch.DailyCashEarned)
	}
	if patch.BoxStates != nil {
		raw, err := json.Marshal(*patch.BoxStates)
		if err != nil {
			return "", nil, fmt.Errorf("encode box states: %w", err)
		}
		add("box_states", raw)
	}
	if patch.LastResetDate != nil {
		add("last_reset_date", *patch.LastResetDate)
	}

	if len(args) == 0 {
		return "", nil, ErrEmptyPatch
	}

	add("updated_at", time.Now().UTC())
	return clauses, args, nil
}
