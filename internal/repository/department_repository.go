package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// DepartmentRepository manages department reference rows.
type DepartmentRepository interface {
	Upsert(ctx context.Context, dept *domain.DepartmentInfo) error
	List(ctx context.Context) ([]domain.DepartmentInfo, error)
}

type departmentRepository struct {
	db DBTX
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(db DBTX) DepartmentRepository {
	return &departmentRepository{db: db}
}

func (r *departmentRepository) Upsert(ctx context.Context, dept *domain.DepartmentInfo) error {
	const query = `
        INSERT INTO departments (name, display_name, description, responsible_role)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (name) DO UPDATE SET display_name=EXCLUDED.display_name,
            description=EXCLUDED.description, responsible_role=EXCLUDED.responsible_role, updated_at=NOW()`
	_, err := r.db.Exec(ctx, query,
		dept.Name,
		dept.DisplayName,
		dept.Description,
		dept.ResponsibleRole,
	)
	return err
}

func (r *departmentRepository) List(ctx context.Context) ([]domain.DepartmentInfo, error) {
	const query = `
        SELECT name, display_name, description, responsible_role
        FROM departments ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DepartmentInfo
	for rows.Next() {
		var dept domain.DepartmentInfo
		if err := rows.Scan(&dept.Name, &dept.DisplayName, &dept.Description, &dept.ResponsibleRole); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
