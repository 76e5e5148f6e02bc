package prospects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldroute/internal/model"
)

// Postgres reads and patches prospects in the shared backend database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("prospects: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) List(ctx context.Context) ([]*model.Prospect, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, name, address, city, lat, lng, status,
		       COALESCE(temperature, ''), COALESCE(project_type, ''),
		       COALESCE(value, 0), COALESCE(notes, ''), created_at
		FROM prospects`)
	if err != nil {
		return nil, classify("list prospects", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Prospect
	for rows.Next() {
		var pr model.Prospect
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Address, &pr.City, &lat, &lng,
			&pr.Status, &pr.Temperature, &pr.ProjectType, &pr.Value, &pr.Notes, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("prospects: scan row: %w", err)
		}
		// A 0,0 pair is the upstream ungeocoded sentinel; keep it nil here.
		if lat.Valid && lng.Valid && !(lat.Float64 == 0 && lng.Float64 == 0) {
			pr.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, &pr)
	}
	return out, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, id string) (*model.Prospect, error) {
	var pr model.Prospect
	var lat, lng sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT id::text, name, address, city, lat, lng, status,
		       COALESCE(temperature, ''), COALESCE(project_type, ''),
		       COALESCE(value, 0), COALESCE(notes, ''), created_at
		FROM prospects WHERE id = $1`, id).
		Scan(&pr.ID, &pr.Name, &pr.Address, &pr.City, &lat, &lng,
			&pr.Status, &pr.Temperature, &pr.ProjectType, &pr.Value, &pr.Notes, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("get prospect", err)
	}
	if lat.Valid && lng.Valid && !(lat.Float64 == 0 && lng.Float64 == 0) {
		pr.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &pr, nil
}

// ApplyOutcome patches only the fields the outcome sets. The UPDATE is
// idempotent: re-applying a delivered outcome writes the same values.
func (p *Postgres) ApplyOutcome(ctx context.Context, id string, outcome model.VisitOutcome) error {
	if err := ValidateOutcome(outcome); err != nil {
		return err
	}
	if outcome.Empty() {
		return nil
	}

	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if outcome.Status != nil {
		args = append(args, string(*outcome.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if outcome.Temperature != nil {
		args = append(args, string(*outcome.Temperature))
		sets = append(sets, fmt.Sprintf("temperature = $%d", len(args)))
	}
	if outcome.Notes != nil {
		args = append(args, *outcome.Notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE prospects SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify("apply outcome", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// classify maps transport-level failures onto ErrUnavailable so the
// caller queues them instead of surfacing a hard error.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("prospects: %s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("prospects: %s: %w", op, err)
}
