package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// or outside the consolidation transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Repository handles portfolio persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

const portfolioColumns = `id, owner_id, name, description, consolidated, created_at, last_update`

// GetByID returns the portfolio or domain.ErrNotFound.
func (r *Repository) GetByID(id int64) (*Portfolio, error) {
	return r.getByID(r.db, id)
}

// GetByIDTx is GetByID inside a transaction.
func (r *Repository) GetByIDTx(tx *sql.Tx, id int64) (*Portfolio, error) {
	return r.getByID(tx, id)
}

func (r *Repository) getByID(q querier, id int64) (*Portfolio, error) {
	row := q.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns all portfolios owned by the user, name order.
func (r *Repository) ListByOwner(ownerID int64) ([]*Portfolio, error) {
	rows, err := r.db.Query(
		`SELECT `+portfolioColumns+` FROM portfolios WHERE owner_id = ? ORDER BY name ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// Create inserts a new portfolio. New portfolios start dirty so the first
// consolidation always runs a full pass.
func (r *Repository) Create(p *Portfolio) error {
	result, err := r.db.Exec(
		`INSERT INTO portfolios (owner_id, name, description, consolidated) VALUES (?, ?, ?, 0)`,
		p.OwnerID, p.Name, p.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio %q: %w", p.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get portfolio id: %w", err)
	}
	p.ID = id
	p.Consolidated = false
	r.log.Info().Int64("portfolio_id", id).Str("name", p.Name).Msg("Portfolio created")
	return nil
}

// SetConsolidatedTx flips the portfolio-level consolidated flag.
func (r *Repository) SetConsolidatedTx(tx *sql.Tx, id int64, consolidated bool) error {
	v := 0
	if consolidated {
		v = 1
	}
	result, err := tx.Exec(
		`UPDATE portfolios SET consolidated = ?, last_update = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		v, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set consolidated flag on portfolio %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var p Portfolio
	var consolidated int
	var createdAt, lastUpdate string
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &consolidated, &createdAt, &lastUpdate); err != nil {
		return nil, err
	}
	p.Consolidated = consolidated != 0
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if p.LastUpdate, err = time.Parse(time.RFC3339, lastUpdate); err != nil {
		return nil, fmt.Errorf("invalid last_update %q: %w", lastUpdate, err)
	}
	return &p, nil
}
