package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/domain"
)

// InsertProject persists a new project. Names are unique.
func (t *Tx) InsertProject(p *domain.Project) error {
	_, err := t.tx.Exec(`
		INSERT INTO projects (id, name, description, created_at)
		VALUES (?,?,?,?)`,
		p.ID, p.Name, p.Description, p.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.ErrDuplicate
		}
		return storeErr("insert project", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (t *Tx) GetProject(id string) (*domain.Project, error) {
	row := t.tx.QueryRow(`SELECT id, name, description, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName looks a project up by its unique name.
func (t *Tx) GetProjectByName(name string) (*domain.Project, error) {
	row := t.tx.QueryRow(`SELECT id, name, description, created_at FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name.
func (t *Tx) ListProjects() ([]domain.Project, error) {
	rows, err := t.tx.Query(`SELECT id, name, description, created_at FROM projects ORDER BY name ASC`)
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, storeErr("scan project", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list projects", err)
	}
	return projects, nil
}

func scanProject(row *sql.Row) (*domain.Project, error) {
	var p domain.Project
	var createdAt int64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, storeErr("get project", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &p, nil
}
