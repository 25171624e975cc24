package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gidas/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const caseColumns = `c.id,c.project_id,c.created_at,c.finished_reported,c.finished_reported_at,c.closed,c.closed_at,c.closed_without_report,c.has_order,c.order_issued_at,c.order_deadline,c.note,c.address,c.parcel_number,c.case_worker,c.postal_code,c.property_number,c.updated_at,p.name,cat.name`

const caseJoins = `FROM cases c
JOIN projects p ON p.id=c.project_id
JOIN categories cat ON cat.id=p.category_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (domain.Case, error) {
	var c domain.Case
	var created, updated string
	var finishedAt, closedAt, orderIssuedAt, orderDeadline sql.NullString
	var finished, closed, closedWithout, postal, property sql.NullInt64
	err := row.Scan(&c.ID, &c.ProjectID, &created, &finished, &finishedAt, &closed, &closedAt, &closedWithout,
		&c.HasOrder, &orderIssuedAt, &orderDeadline, &c.Note, &c.Address, &c.ParcelNumber, &c.CaseWorker,
		&postal, &property, &updated, &c.ProjectName, &c.CategoryName)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, fmt.Errorf("case %s: %w", c.ID, err)
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return c, fmt.Errorf("case %s: %w", c.ID, err)
	}
	c.FinishedReported = intPtr(finished)
	c.Closed = intPtr(closed)
	c.ClosedWithoutReport = intPtr(closedWithout)
	c.PostalCode = intPtr(postal)
	c.PropertyNumber = intPtr(property)
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{finishedAt, &c.FinishedReportedAt},
		{closedAt, &c.ClosedAt},
		{orderIssuedAt, &c.OrderIssuedAt},
		{orderDeadline, &c.OrderDeadline},
	} {
		if !f.src.Valid {
			continue
		}
		t, err := parseTime(f.src.String)
		if err != nil {
			return c, fmt.Errorf("case %s: %w", c.ID, err)
		}
		*f.dst = &t
	}
	return c, nil
}

func (r Repo) InsertCategory(ctx context.Context, cat domain.Category) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO categories(id,name,active,created_at) VALUES (?,?,?,?)`,
		cat.ID, cat.Name, boolInt(cat.Active), fmtTime(cat.CreatedAt))
	return err
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return scanCategory(r.DB.QueryRowContext(ctx, `SELECT id,name,active,created_at FROM categories WHERE id=?`, id))
}

func (r Repo) GetCategoryByName(ctx context.Context, name string) (domain.Category, error) {
	return scanCategory(r.DB.QueryRowContext(ctx, `SELECT id,name,active,created_at FROM categories WHERE name=?`, name))
}

func scanCategory(row scanner) (domain.Category, error) {
	var cat domain.Category
	var active int
	var created string
	err := row.Scan(&cat.ID, &cat.Name, &active, &created)
	if err == sql.ErrNoRows {
		return cat, ErrNotFound
	}
	if err != nil {
		return cat, err
	}
	cat.Active = active != 0
	cat.CreatedAt, err = parseTime(created)
	return cat, err
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,active,created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, cat)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCategoryActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE categories SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,category_id,folder,closed,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.CategoryID, p.Folder, boolInt(p.Closed), fmtTime(p.CreatedAt))
	return err
}

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var closed int
	var created string
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Folder, &closed, &created)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Closed = closed != 0
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,category_id,folder,closed,created_at FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context, categoryID string) ([]domain.Project, error) {
	query := `SELECT id,name,category_id,folder,closed,created_at FROM projects`
	var args []any
	if categoryID != "" {
		query += ` WHERE category_id=?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectClosed(ctx context.Context, id string, closed bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET closed=? WHERE id=?`, boolInt(closed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cases(id,project_id,created_at,finished_reported,finished_reported_at,closed,closed_at,closed_without_report,has_order,order_issued_at,order_deadline,note,address,parcel_number,case_worker,postal_code,property_number,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, fmtTime(c.CreatedAt), nullableIntPtr(c.FinishedReported), nullableTimePtr(c.FinishedReportedAt),
		nullableIntPtr(c.Closed), nullableTimePtr(c.ClosedAt), nullableIntPtr(c.ClosedWithoutReport),
		c.HasOrder, nullableTimePtr(c.OrderIssuedAt), nullableTimePtr(c.OrderDeadline),
		c.Note, c.Address, c.ParcelNumber, c.CaseWorker,
		nullableIntPtr(c.PostalCode), nullableIntPtr(c.PropertyNumber), fmtTime(c.UpdatedAt))
	return err
}

func (r Repo) UpdateCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET project_id=?, finished_reported=?, finished_reported_at=?, closed=?, closed_at=?, closed_without_report=?, has_order=?, order_issued_at=?, order_deadline=?, note=?, address=?, parcel_number=?, case_worker=?, postal_code=?, property_number=?, updated_at=? WHERE id=?`,
		c.ProjectID, nullableIntPtr(c.FinishedReported), nullableTimePtr(c.FinishedReportedAt),
		nullableIntPtr(c.Closed), nullableTimePtr(c.ClosedAt), nullableIntPtr(c.ClosedWithoutReport),
		c.HasOrder, nullableTimePtr(c.OrderIssuedAt), nullableTimePtr(c.OrderDeadline),
		c.Note, c.Address, c.ParcelNumber, c.CaseWorker,
		nullableIntPtr(c.PostalCode), nullableIntPtr(c.PropertyNumber), fmtTime(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return scanCase(r.DB.QueryRowContext(ctx, `SELECT `+caseColumns+` `+caseJoins+` WHERE c.id=?`, id))
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(tx.QueryRowContext(ctx, `SELECT `+caseColumns+` `+caseJoins+` WHERE c.id=?`, id))
}

func (r Repo) DeleteCase(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM case_events WHERE case_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchCases loads the full record set for one category, optionally
// restricted to a creation window. This feeds the classification and
// aggregation paths, which need whole rows rather than SQL aggregates.
func (r Repo) FetchCases(ctx context.Context, categoryName string, from, to time.Time) ([]domain.Case, error) {
	clauses := []string{"cat.name=?"}
	args := []any{categoryName}
	if !from.IsZero() {
		clauses = append(clauses, "c.created_at >= ?")
		args = append(args, fmtTime(from))
	}
	if !to.IsZero() {
		clauses = append(clauses, "c.created_at < ?")
		args = append(args, fmtTime(to))
	}
	query := `SELECT ` + caseColumns + ` ` + caseJoins + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY c.created_at DESC, c.id DESC`
	return r.queryCases(ctx, query, args...)
}

// FetchAllCases loads every record regardless of category.
func (r Repo) FetchAllCases(ctx context.Context, from, to time.Time) ([]domain.Case, error) {
	clauses := []string{"1=1"}
	var args []any
	if !from.IsZero() {
		clauses = append(clauses, "c.created_at >= ?")
		args = append(args, fmtTime(from))
	}
	if !to.IsZero() {
		clauses = append(clauses, "c.created_at < ?")
		args = append(args, fmtTime(to))
	}
	query := `SELECT ` + caseColumns + ` ` + caseJoins + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY c.created_at DESC, c.id DESC`
	return r.queryCases(ctx, query, args...)
}

type CaseFilters struct {
	CategoryName    string
	ProjectID       string
	CaseWorker      string
	PostalCode      *int
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	var clauses []string
	var args []any
	if f.CategoryName != "" {
		clauses = append(clauses, "cat.name=?")
		args = append(args, f.CategoryName)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "c.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.CaseWorker != "" {
		clauses = append(clauses, "c.case_worker=?")
		args = append(args, f.CaseWorker)
	}
	if f.PostalCode != nil {
		clauses = append(clauses, "c.postal_code=?")
		args = append(args, *f.PostalCode)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(c.created_at < ? OR (c.created_at = ? AND c.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseColumns + ` ` + caseJoins + ` ` + where + ` ORDER BY c.created_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryCases(ctx, query, args...)
}

// SearchCases matches the query against address, note, parcel number,
// case worker and id.
func (r Repo) SearchCases(ctx context.Context, q string, limit int) ([]domain.Case, error) {
	like := "%" + q + "%"
	query := `SELECT ` + caseColumns + ` ` + caseJoins + `
WHERE c.address LIKE ? OR c.note LIKE ? OR c.parcel_number LIKE ? OR c.case_worker LIKE ? OR c.id LIKE ?
ORDER BY c.created_at DESC, c.id DESC`
	args := []any{like, like, like, like, like}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryCases(ctx, query, args...)
}

func (r Repo) queryCases(ctx context.Context, query string, args ...any) ([]domain.Case, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) ListCaseEvents(ctx context.Context, caseID string, limit int) ([]domain.CaseEvent, error) {
	query := `SELECT id,case_id,ts,type,note,actor_id FROM case_events WHERE case_id=? ORDER BY id DESC`
	args := []any{caseID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CaseEvent
	for rows.Next() {
		var e domain.CaseEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.CaseID, &ts, &e.Type, &e.Note, &e.ActorID); err != nil {
			return nil, err
		}
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// RecentCaseEvents returns the newest events across all cases, most
// recent first.
func (r Repo) RecentCaseEvents(ctx context.Context, limit int) ([]domain.CaseEvent, error) {
	query := `SELECT id,case_id,ts,type,note,actor_id FROM case_events ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CaseEvent
	for rows.Next() {
		var e domain.CaseEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.CaseID, &ts, &e.Type, &e.Note, &e.ActorID); err != nil {
			return nil, err
		}
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// SuggestTerms returns distinct addresses and case-worker names with the
// given prefix, for typeahead completion.
func (r Repo) SuggestTerms(ctx context.Context, prefix string, limit int) ([]string, error) {
	like := prefix + "%"
	query := `SELECT DISTINCT address AS term FROM cases WHERE address LIKE ? AND address != ''
UNION
SELECT DISTINCT case_worker FROM cases WHERE case_worker LIKE ? AND case_worker != ''
ORDER BY term ASC`
	args := []any{like, like}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CategoryNames returns the distinct category names that actually have
// cases, for the cross-category report paths.
func (r Repo) CategoryNames(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name FROM categories WHERE active=1 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
