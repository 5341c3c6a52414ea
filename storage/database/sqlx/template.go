package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core/evaluation"
)

type templateRow struct {
	ID                string      `db:"id"`
	CourseTemplateID  string      `db:"course_template_id"`
	Name              string      `db:"name"`
	Description       null.String `db:"description"`
	PassingTotalScore float64     `db:"passing_total_score"`
	IsActive          bool        `db:"is_active"`
	Version           int         `db:"version"`
	ParentID          null.String `db:"parent_id"`
	CreatedBy         null.String `db:"created_by"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func toTemplateRow(t evaluation.Template) templateRow {
	return templateRow{
		ID:                t.ID,
		CourseTemplateID:  t.CourseTemplateID,
		Name:              t.Name,
		Description:       null.NewString(t.Description, t.Description != ""),
		PassingTotalScore: t.PassingTotalScore,
		IsActive:          t.IsActive,
		Version:           t.Version,
		ParentID:          null.NewString(t.ParentID, t.ParentID != ""),
		CreatedBy:         null.NewString(t.CreatedBy, t.CreatedBy != ""),
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
	}
}

func (r templateRow) toTemplate() evaluation.Template {
	return evaluation.Template{
		ID:                r.ID,
		CourseTemplateID:  r.CourseTemplateID,
		Name:              r.Name,
		Description:       r.Description.String,
		PassingTotalScore: r.PassingTotalScore,
		IsActive:          r.IsActive,
		Version:           r.Version,
		ParentID:          r.ParentID.String,
		CreatedBy:         r.CreatedBy.String,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		Components:        make([]evaluation.Component, 0),
	}
}

type componentRow struct {
	ID               string         `db:"id"`
	TemplateID       string         `db:"template_id"`
	Name             string         `db:"name"`
	Code             string         `db:"code"`
	Description      null.String    `db:"description"`
	WeightPercentage float64        `db:"weight_percentage"`
	EvaluationType   string         `db:"evaluation_type"`
	Graders          types.JSONText `db:"graders"`
	OrderIndex       int            `db:"order_index"`
	IsActive         bool           `db:"is_active"`
	IsRequired       bool           `db:"is_required"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toComponentRow(c evaluation.Component) (componentRow, error) {
	graders := c.Graders
	if graders == nil {
		graders = []evaluation.GraderWeight{}
	}
	gj, err := marshalJSON(graders)
	if err != nil {
		return componentRow{}, errors.Wrap(err, "encoding graders")
	}
	return componentRow{
		ID:               c.ID,
		TemplateID:       c.TemplateID,
		Name:             c.Name,
		Code:             c.Code,
		Description:      null.NewString(c.Description, c.Description != ""),
		WeightPercentage: c.WeightPercentage,
		EvaluationType:   string(c.EvaluationType),
		Graders:          gj,
		OrderIndex:       c.OrderIndex,
		IsActive:         c.IsActive,
		IsRequired:       c.IsRequired,
		CreatedAt:        c.CreatedAt.UTC(),
		UpdatedAt:        c.UpdatedAt.UTC(),
	}, nil
}

func (r componentRow) toComponent() (evaluation.Component, error) {
	comp := evaluation.Component{
		ID:               r.ID,
		TemplateID:       r.TemplateID,
		Name:             r.Name,
		Code:             r.Code,
		Description:      r.Description.String,
		WeightPercentage: r.WeightPercentage,
		EvaluationType:   evaluation.EvaluationType(r.EvaluationType),
		OrderIndex:       r.OrderIndex,
		IsActive:         r.IsActive,
		IsRequired:       r.IsRequired,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		SubItems:         make([]evaluation.SubItem, 0),
	}
	if err := r.Graders.Unmarshal(&comp.Graders); err != nil {
		return evaluation.Component{}, errors.Wrap(err, "decoding graders")
	}
	if len(comp.Graders) == 0 {
		comp.Graders = nil
	}
	return comp, nil
}

type subItemRow struct {
	ID          string      `db:"id"`
	ComponentID string      `db:"component_id"`
	Name        string      `db:"name"`
	Code        string      `db:"code"`
	Description null.String `db:"description"`
	MaxScore    float64     `db:"max_score"`
	OrderIndex  int         `db:"order_index"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toSubItemRow(si evaluation.SubItem) subItemRow {
	return subItemRow{
		ID:          si.ID,
		ComponentID: si.ComponentID,
		Name:        si.Name,
		Code:        si.Code,
		Description: null.NewString(si.Description, si.Description != ""),
		MaxScore:    si.MaxScore,
		OrderIndex:  si.OrderIndex,
		CreatedAt:   si.CreatedAt.UTC(),
		UpdatedAt:   si.UpdatedAt.UTC(),
	}
}

func (r subItemRow) toSubItem() evaluation.SubItem {
	return evaluation.SubItem{
		ID:          r.ID,
		ComponentID: r.ComponentID,
		Name:        r.Name,
		Code:        r.Code,
		Description: r.Description.String,
		MaxScore:    r.MaxScore,
		OrderIndex:  r.OrderIndex,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const (
	templateColumns  = `id, course_template_id, name, description, passing_total_score, is_active, version, parent_id, created_by, created_at, updated_at`
	componentColumns = `id, template_id, name, code, description, weight_percentage, evaluation_type, graders, order_index, is_active, is_required, created_at, updated_at`
	subItemColumns   = `id, component_id, name, code, description, max_score, order_index, created_at, updated_at`

	insertTemplateQuery = `INSERT INTO evaluation_templates (` + templateColumns + `)
		VALUES (:id, :course_template_id, :name, :description, :passing_total_score, :is_active, :version, :parent_id, :created_by, :created_at, :updated_at)`
	insertComponentQuery = `INSERT INTO evaluation_components (` + componentColumns + `)
		VALUES (:id, :template_id, :name, :code, :description, :weight_percentage, :evaluation_type, :graders, :order_index, :is_active, :is_required, :created_at, :updated_at)`
	insertSubItemQuery = `INSERT INTO evaluation_sub_items (` + subItemColumns + `)
		VALUES (:id, :component_id, :name, :code, :description, :max_score, :order_index, :created_at, :updated_at)`
)

// insertComponent inserts the component and its sub-items.
func insertComponent(ctx context.Context, exec sqlx.ExtContext, comp evaluation.Component) (string, error) {
	if comp.ID == "" {
		comp.ID = newID()
	}
	row, err := toComponentRow(comp)
	if err != nil {
		return "", err
	}
	if _, err = sqlx.NamedExecContext(ctx, exec, insertComponentQuery, row); err != nil {
		if pqErrCode(err) == codeForeignKeyViolation {
			return "", evaluation.ErrTemplateNotFound
		}
		return "", errors.Wrap(err, "inserting component")
	}
	for _, si := range comp.SubItems {
		si.ComponentID = comp.ID
		if _, err = insertSubItem(ctx, exec, si); err != nil {
			return "", err
		}
	}
	return comp.ID, nil
}

func insertSubItem(ctx context.Context, exec sqlx.ExtContext, si evaluation.SubItem) (string, error) {
	if si.ID == "" {
		si.ID = newID()
	}
	if _, err := sqlx.NamedExecContext(ctx, exec, insertSubItemQuery, toSubItemRow(si)); err != nil {
		if pqErrCode(err) == codeForeignKeyViolation {
			return "", evaluation.ErrComponentNotFound
		}
		return "", errors.Wrap(err, "inserting sub-item")
	}
	return si.ID, nil
}

// loadComponents returns the components of `templateIDs` with their sub-items, grouped by template.
func loadComponents(ctx context.Context, q sqlx.QueryerContext, templateIDs []string) (map[string][]evaluation.Component, error) {
	var rows []componentRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+componentColumns+` FROM evaluation_components WHERE template_id = ANY($1::uuid[]) ORDER BY order_index, code`,
		pq.Array(templateIDs))
	if err != nil {
		return nil, errors.Wrap(err, "selecting components")
	}

	compIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		compIDs = append(compIDs, r.ID)
	}
	items, err := loadSubItems(ctx, q, compIDs)
	if err != nil {
		return nil, err
	}

	comps := make(map[string][]evaluation.Component, len(templateIDs))
	for _, r := range rows {
		comp, err := r.toComponent()
		if err != nil {
			return nil, err
		}
		if its, ok := items[comp.ID]; ok {
			comp.SubItems = its
		}
		comps[comp.TemplateID] = append(comps[comp.TemplateID], comp)
	}
	return comps, nil
}

func loadSubItems(ctx context.Context, q sqlx.QueryerContext, componentIDs []string) (map[string][]evaluation.SubItem, error) {
	var rows []subItemRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+subItemColumns+` FROM evaluation_sub_items WHERE component_id = ANY($1::uuid[]) ORDER BY order_index, code`,
		pq.Array(componentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "selecting sub-items")
	}
	items := make(map[string][]evaluation.SubItem, len(componentIDs))
	for _, r := range rows {
		items[r.ComponentID] = append(items[r.ComponentID], r.toSubItem())
	}
	return items, nil
}

func (repo *EvaluationRepository) assembleTemplates(ctx context.Context, rows []templateRow) ([]evaluation.Template, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	comps, err := loadComponents(ctx, repo.db, ids)
	if err != nil {
		return nil, err
	}
	tmpls := make([]evaluation.Template, 0, len(rows))
	for _, r := range rows {
		tmpl := r.toTemplate()
		if cs, ok := comps[tmpl.ID]; ok {
			tmpl.Components = cs
		}
		tmpls = append(tmpls, tmpl)
	}
	return tmpls, nil
}

func (repo *EvaluationRepository) CreateTemplate(ctx context.Context, tmpl evaluation.Template) (evaluation.Template, error) {
	if tmpl.ID == "" {
		tmpl.ID = newID()
	}
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertTemplateQuery, toTemplateRow(tmpl)); err != nil {
			return errors.Wrap(err, "inserting template")
		}
		for _, c := range tmpl.Components {
			c.TemplateID = tmpl.ID
			if _, err := insertComponent(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return evaluation.Template{}, err
	}
	return repo.GetTemplate(ctx, tmpl.ID)
}

func (repo *EvaluationRepository) GetTemplate(ctx context.Context, id string) (evaluation.Template, error) {
	var row templateRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM evaluation_templates WHERE id = $1`, id)
	if err != nil {
		return evaluation.Template{}, trapNotFound(err, evaluation.ErrTemplateNotFound, "selecting template")
	}
	tmpls, err := repo.assembleTemplates(ctx, []templateRow{row})
	if err != nil {
		return evaluation.Template{}, err
	}
	return tmpls[0], nil
}

func (repo *EvaluationRepository) QueryTemplates(ctx context.Context, filter evaluation.TemplateFilter) ([]evaluation.Template, error) {
	var w where
	if filter.CourseTemplateID != "" {
		w.add("course_template_id = ?", filter.CourseTemplateID)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		w.add("(name ILIKE ? OR description ILIKE ?)", "%"+filter.Search+"%")
	}

	var rows []templateRow
	q := `SELECT ` + templateColumns + ` FROM evaluation_templates` + w.String() + ` ORDER BY course_template_id, version, created_at`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting templates")
	}
	return repo.assembleTemplates(ctx, rows)
}

func (repo *EvaluationRepository) UpdateTemplate(ctx context.Context, tmpl evaluation.Template) (evaluation.Template, error) {
	row := toTemplateRow(tmpl)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE evaluation_templates
		SET name = :name, description = :description, passing_total_score = :passing_total_score,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, row)
	if err = checkAffected(res, err, evaluation.ErrTemplateNotFound, "updating template"); err != nil {
		return evaluation.Template{}, err
	}
	return repo.GetTemplate(ctx, tmpl.ID)
}

func (repo *EvaluationRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM evaluation_templates WHERE id = $1`, id)
	return checkAffected(res, err, evaluation.ErrTemplateNotFound, "deleting template")
}

func (repo *EvaluationRepository) IsTemplateGraded(ctx context.Context, id string) (bool, error) {
	var graded bool
	err := repo.db.GetContext(ctx, &graded, `SELECT EXISTS (SELECT 1 FROM comprehensive_grades WHERE template_id = $1)`, id)
	if err != nil {
		return false, trapNotFound(err, evaluation.ErrTemplateNotFound, "checking template grades")
	}
	return graded, nil
}

func (repo *EvaluationRepository) CreateComponent(ctx context.Context, comp evaluation.Component) (evaluation.Component, error) {
	var id string
	err := repo.withTx(ctx, func(tx *sqlx.Tx) (err error) {
		id, err = insertComponent(ctx, tx, comp)
		return err
	})
	if err != nil {
		return evaluation.Component{}, err
	}
	return repo.GetComponent(ctx, id)
}

func (repo *EvaluationRepository) GetComponent(ctx context.Context, id string) (evaluation.Component, error) {
	var row componentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+componentColumns+` FROM evaluation_components WHERE id = $1`, id)
	if err != nil {
		return evaluation.Component{}, trapNotFound(err, evaluation.ErrComponentNotFound, "selecting component")
	}
	comp, err := row.toComponent()
	if err != nil {
		return evaluation.Component{}, err
	}
	items, err := loadSubItems(ctx, repo.db, []string{id})
	if err != nil {
		return evaluation.Component{}, err
	}
	if its, ok := items[id]; ok {
		comp.SubItems = its
	}
	return comp, nil
}

func (repo *EvaluationRepository) UpdateComponent(ctx context.Context, comp evaluation.Component) (evaluation.Component, error) {
	row, err := toComponentRow(comp)
	if err != nil {
		return evaluation.Component{}, err
	}
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE evaluation_components
		SET name = :name, code = :code, description = :description, weight_percentage = :weight_percentage,
			evaluation_type = :evaluation_type, graders = :graders, order_index = :order_index,
			is_active = :is_active, is_required = :is_required, updated_at = :updated_at
		WHERE id = :id`, row)
	if err = checkAffected(res, err, evaluation.ErrComponentNotFound, "updating component"); err != nil {
		return evaluation.Component{}, err
	}
	return repo.GetComponent(ctx, comp.ID)
}

func (repo *EvaluationRepository) UpdateComponentWeights(ctx context.Context, templateID string, weights map[string]float64, updatedAt time.Time) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		for id, w := range weights {
			res, err := tx.ExecContext(ctx,
				`UPDATE evaluation_components SET weight_percentage = $1, updated_at = $2 WHERE id = $3 AND template_id = $4`,
				w, updatedAt.UTC(), id, templateID)
			if err = checkAffected(res, err, evaluation.ErrComponentNotFound, "updating component weight"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (repo *EvaluationRepository) DeleteComponent(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM evaluation_components WHERE id = $1`, id)
	return checkAffected(res, err, evaluation.ErrComponentNotFound, "deleting component")
}

func (repo *EvaluationRepository) CreateSubItem(ctx context.Context, item evaluation.SubItem) (evaluation.SubItem, error) {
	id, err := insertSubItem(ctx, repo.db, item)
	if err != nil {
		return evaluation.SubItem{}, err
	}
	return repo.GetSubItem(ctx, id)
}

func (repo *EvaluationRepository) GetSubItem(ctx context.Context, id string) (evaluation.SubItem, error) {
	var row subItemRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+subItemColumns+` FROM evaluation_sub_items WHERE id = $1`, id)
	if err != nil {
		return evaluation.SubItem{}, trapNotFound(err, evaluation.ErrSubItemNotFound, "selecting sub-item")
	}
	return row.toSubItem(), nil
}

func (repo *EvaluationRepository) UpdateSubItem(ctx context.Context, item evaluation.SubItem) (evaluation.SubItem, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE evaluation_sub_items
		SET name = :name, code = :code, description = :description, max_score = :max_score,
			order_index = :order_index, updated_at = :updated_at
		WHERE id = :id`, toSubItemRow(item))
	if err = checkAffected(res, err, evaluation.ErrSubItemNotFound, "updating sub-item"); err != nil {
		return evaluation.SubItem{}, err
	}
	return repo.GetSubItem(ctx, item.ID)
}

func (repo *EvaluationRepository) DeleteSubItem(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM evaluation_sub_items WHERE id = $1`, id)
	return checkAffected(res, err, evaluation.ErrSubItemNotFound, "deleting sub-item")
}
