package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/buildbuddy/credits-service/internal/domain"
)

var ErrProjectNotFound = errors.New("project not found")

// pgForeignKeyViolation is the SQLSTATE raised when a referenced row is missing.
const pgForeignKeyViolation = "23503"

// CreateProject inserts a project together with its first message in one transaction.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project, first *domain.Message) (*domain.Project, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create project: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureUser(ctx, tx, project.UserID); err != nil {
		return nil, err
	}

	if project.ID == "" {
		project.ID = uuid.NewString()
	}

	var created domain.Project
	err = tx.QueryRow(ctx, `
        INSERT INTO projects (id, name, user_id)
        VALUES ($1, $2, $3)
        RETURNING id, name, user_id, created_at, updated_at
    `, project.ID, project.Name, project.UserID).Scan(
		&created.ID,
		&created.Name,
		&created.UserID,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if first != nil {
		first.ProjectID = created.ID
		if _, err := insertMessage(ctx, tx, first); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create project: %w", err)
	}
	return &created, nil
}

// CreateMessage appends a message to an existing project.
func (r *Repository) CreateMessage(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	created, err := insertMessage(ctx, r.db, message)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return created, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertMessage(ctx context.Context, q queryRower, message *domain.Message) (*domain.Message, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	var created domain.Message
	err := q.QueryRow(ctx, `
        INSERT INTO messages (id, project_id, content, role, type)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, project_id, content, role, type, created_at, updated_at
    `, message.ID, message.ProjectID, message.Content, message.Role, message.Type).Scan(
		&created.ID,
		&created.ProjectID,
		&created.Content,
		&created.Role,
		&created.Type,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetProject retrieves a project by id.
func (r *Repository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	var p domain.Project
	err := r.db.QueryRow(ctx, `
        SELECT id, name, user_id, created_at, updated_at
        FROM projects
        WHERE id = $1
    `, projectID).Scan(&p.ID, &p.Name, &p.UserID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProjects returns a user's projects, most recently updated first.
func (r *Repository) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, name, user_id, created_at, updated_at
        FROM projects
        WHERE user_id = $1
        ORDER BY updated_at DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.UserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListMessages returns a project's messages in conversation order, with any generated fragment.
func (r *Repository) ListMessages(ctx context.Context, projectID string) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
        SELECT m.id, m.project_id, m.content, m.role, m.type, m.created_at, m.updated_at,
               f.id, f.sandbox_url, f.title, f.files, f.created_at
        FROM messages m
        LEFT JOIN fragments f ON f.message_id = m.id
        WHERE m.project_id = $1
        ORDER BY m.updated_at ASC
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			m            domain.Message
			fragmentID   *string
			sandboxURL   *string
			title        *string
			files        []byte
			fragmentTime *time.Time
		)
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.Content, &m.Role, &m.Type, &m.CreatedAt, &m.UpdatedAt,
			&fragmentID, &sandboxURL, &title, &files, &fragmentTime,
		); err != nil {
			return nil, err
		}
		if fragmentID != nil {
			m.Fragment = &domain.Fragment{
				ID:         *fragmentID,
				MessageID:  m.ID,
				SandboxURL: derefString(sandboxURL),
				Title:      derefString(title),
				Files:      files,
			}
			if fragmentTime != nil {
				m.Fragment.CreatedAt = *fragmentTime
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
