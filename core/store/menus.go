package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type pgMenus struct {
	db *sqlx.DB
}

// NewMenus returns the Postgres-backed menu tree storage.
func NewMenus(db *sqlx.DB) Menus {
	return &pgMenus{db: db}
}

func (s *pgMenus) CreateMenu(ctx context.Context, m *Menu) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("menus insert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A bot keeps at most one default menu.
	if m.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE menus SET is_default = FALSE WHERE bot_id = $1 AND is_default`, m.BotID); err != nil {
			return fmt.Errorf("menus clear default: %w", err)
		}
	}
	const q = `
		INSERT INTO menus (bot_id, parent_id, name, description, is_default, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at`
	if err := tx.QueryRowxContext(ctx, q,
		m.BotID, m.ParentID, m.Name, m.Description, m.IsDefault).
		Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("menus insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("menus insert commit: %w", err)
	}
	m.Active = true
	return nil
}

func (s *pgMenus) GetMenu(ctx context.Context, id int64) (*Menu, error) {
	var m Menu
	err := s.db.GetContext(ctx, &m, `SELECT * FROM menus WHERE id = $1 AND active`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("menus get: %w", err)
	}
	return &m, nil
}

func (s *pgMenus) GetDefaultMenu(ctx context.Context, botID int64) (*Menu, error) {
	var m Menu
	err := s.db.GetContext(ctx, &m,
		`SELECT * FROM menus WHERE bot_id = $1 AND is_default AND active`, botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("menus get default: %w", err)
	}
	return &m, nil
}

func (s *pgMenus) ListMenus(ctx context.Context, botID int64) ([]Menu, error) {
	var out []Menu
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM menus WHERE bot_id = $1 AND active ORDER BY id`, botID)
	if err != nil {
		return nil, fmt.Errorf("menus list: %w", err)
	}
	return out, nil
}

func (s *pgMenus) ListChildren(ctx context.Context, parentID int64) ([]Menu, error) {
	var out []Menu
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM menus WHERE parent_id = $1 AND active ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("menus list children: %w", err)
	}
	return out, nil
}

func (s *pgMenus) CountActiveMenus(ctx context.Context, botID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM menus WHERE bot_id = $1 AND active`, botID)
	if err != nil {
		return 0, fmt.Errorf("menus count: %w", err)
	}
	return n, nil
}

func (s *pgMenus) UpdateMenuName(ctx context.Context, id int64, name string) error {
	return s.updateMenuField(ctx, id, "name", name)
}

func (s *pgMenus) UpdateMenuDescription(ctx context.Context, id int64, description string) error {
	return s.updateMenuField(ctx, id, "description", description)
}

func (s *pgMenus) UpdateMenuParent(ctx context.Context, id int64, parentID sql.NullInt64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE menus SET parent_id = $2 WHERE id = $1 AND active`, id, parentID)
	if err != nil {
		return fmt.Errorf("menus update parent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgMenus) updateMenuField(ctx context.Context, id int64, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE menus SET %s = $2 WHERE id = $1 AND active`, column), id, value)
	if err != nil {
		return fmt.Errorf("menus update %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgMenus) DeactivateMenu(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("menus deactivate begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE menus SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("menus deactivate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE menu_buttons SET active = FALSE WHERE menu_id = $1`, id); err != nil {
		return fmt.Errorf("menus deactivate buttons: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("menus deactivate commit: %w", err)
	}
	return nil
}

func (s *pgMenus) CreateButton(ctx context.Context, b *Button) error {
	const q = `
		INSERT INTO menu_buttons (menu_id, label, "row", col, action, value, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id, created_at`
	if err := s.db.QueryRowxContext(ctx, q,
		b.MenuID, b.Label, b.Row, b.Col, b.Action, b.Value).
		Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("menu_buttons insert: %w", err)
	}
	b.Active = true
	return nil
}

func (s *pgMenus) GetButton(ctx context.Context, id int64) (*Button, error) {
	var b Button
	err := s.db.GetContext(ctx, &b, `SELECT * FROM menu_buttons WHERE id = $1 AND active`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("menu_buttons get: %w", err)
	}
	return &b, nil
}

func (s *pgMenus) ListButtons(ctx context.Context, menuID int64) ([]Button, error) {
	var out []Button
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM menu_buttons WHERE menu_id = $1 AND active ORDER BY "row", col, id`, menuID)
	if err != nil {
		return nil, fmt.Errorf("menu_buttons list: %w", err)
	}
	return out, nil
}

func (s *pgMenus) CountActiveButtons(ctx context.Context, menuID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM menu_buttons WHERE menu_id = $1 AND active`, menuID)
	if err != nil {
		return 0, fmt.Errorf("menu_buttons count: %w", err)
	}
	return n, nil
}
