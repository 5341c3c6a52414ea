package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/gradebook/core/evaluation"
)

type EvaluationRepository struct {
	db *DB
}

var _ evaluation.Repository = (*EvaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func newID() string {
	return uuid.New().String()
}

// assembleTemplate returns the template with its components and sub-items. The caller holds the lock.
func (repo *EvaluationRepository) assembleTemplate(t *evaluation.Template) evaluation.Template {
	tmpl := *t
	tmpl.Components = make([]evaluation.Component, 0)
	for _, c := range repo.db.components {
		if c.TemplateID == t.ID {
			tmpl.Components = append(tmpl.Components, repo.assembleComponent(c))
		}
	}
	evaluation.SortComponents(tmpl.Components)
	return tmpl
}

// assembleComponent returns a copy of the component with its sub-items. The caller holds the lock.
func (repo *EvaluationRepository) assembleComponent(c *evaluation.Component) evaluation.Component {
	comp := copyComponent(*c)
	comp.SubItems = make([]evaluation.SubItem, 0)
	for _, si := range repo.db.subItems {
		if si.ComponentID == c.ID {
			comp.SubItems = append(comp.SubItems, *si)
		}
	}
	evaluation.SortSubItems(comp.SubItems)
	return comp
}

// insertComponent stores the component and its sub-items. The caller holds the lock.
func (repo *EvaluationRepository) insertComponent(comp evaluation.Component) {
	if comp.ID == "" {
		comp.ID = newID()
	}
	for _, si := range comp.SubItems {
		si.ComponentID = comp.ID
		repo.insertSubItem(si)
	}
	comp = copyComponent(comp)
	comp.SubItems = nil
	repo.db.components[comp.ID] = &comp
}

func (repo *EvaluationRepository) insertSubItem(si evaluation.SubItem) string {
	if si.ID == "" {
		si.ID = newID()
	}
	repo.db.subItems[si.ID] = &si
	return si.ID
}

func (repo *EvaluationRepository) deleteComponent(id string) {
	for siID, si := range repo.db.subItems {
		if si.ComponentID == id {
			delete(repo.db.subItems, siID)
		}
	}
	delete(repo.db.components, id)
}

func (repo *EvaluationRepository) CreateTemplate(_ context.Context, tmpl evaluation.Template) (evaluation.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if tmpl.ID == "" {
		tmpl.ID = newID()
	}
	for _, c := range tmpl.Components {
		c.TemplateID = tmpl.ID
		repo.insertComponent(c)
	}
	header := tmpl
	header.Components = nil
	repo.db.templates[tmpl.ID] = &header
	return repo.assembleTemplate(&header), nil
}

func (repo *EvaluationRepository) GetTemplate(_ context.Context, id string) (evaluation.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.templates[id]; ok {
		return repo.assembleTemplate(t), nil
	}
	return evaluation.Template{}, evaluation.ErrTemplateNotFound
}

func (repo *EvaluationRepository) QueryTemplates(_ context.Context, filter evaluation.TemplateFilter) ([]evaluation.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	tmpls := make([]evaluation.Template, 0)
	for _, t := range repo.db.templates {
		if filter.CourseTemplateID != "" && t.CourseTemplateID != filter.CourseTemplateID {
			continue
		}
		if filter.IsActive != nil && t.IsActive != *filter.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		tmpls = append(tmpls, repo.assembleTemplate(t))
	}
	sort.Slice(tmpls, func(i, j int) bool {
		if tmpls[i].CourseTemplateID != tmpls[j].CourseTemplateID {
			return tmpls[i].CourseTemplateID < tmpls[j].CourseTemplateID
		}
		if tmpls[i].Version != tmpls[j].Version {
			return tmpls[i].Version < tmpls[j].Version
		}
		return tmpls[i].CreatedAt.Before(tmpls[j].CreatedAt)
	})
	return tmpls, nil
}

func (repo *EvaluationRepository) UpdateTemplate(_ context.Context, tmpl evaluation.Template) (evaluation.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.templates[tmpl.ID]
	if !ok {
		return evaluation.Template{}, evaluation.ErrTemplateNotFound
	}
	orig.Name = tmpl.Name
	orig.Description = tmpl.Description
	orig.PassingTotalScore = tmpl.PassingTotalScore
	orig.IsActive = tmpl.IsActive
	orig.UpdatedAt = tmpl.UpdatedAt
	return repo.assembleTemplate(orig), nil
}

func (repo *EvaluationRepository) DeleteTemplate(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.templates[id]; !ok {
		return evaluation.ErrTemplateNotFound
	}
	for cID, c := range repo.db.components {
		if c.TemplateID == id {
			repo.deleteComponent(cID)
		}
	}
	delete(repo.db.templates, id)
	return nil
}

func (repo *EvaluationRepository) IsTemplateGraded(_ context.Context, id string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, g := range repo.db.grades {
		if g.TemplateID == id {
			return true, nil
		}
	}
	return false, nil
}

func (repo *EvaluationRepository) CreateComponent(_ context.Context, comp evaluation.Component) (evaluation.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.templates[comp.TemplateID]; !ok {
		return evaluation.Component{}, evaluation.ErrTemplateNotFound
	}
	if comp.ID == "" {
		comp.ID = newID()
	}
	repo.insertComponent(comp)
	return repo.assembleComponent(repo.db.components[comp.ID]), nil
}

func (repo *EvaluationRepository) GetComponent(_ context.Context, id string) (evaluation.Component, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.components[id]; ok {
		return repo.assembleComponent(c), nil
	}
	return evaluation.Component{}, evaluation.ErrComponentNotFound
}

func (repo *EvaluationRepository) UpdateComponent(_ context.Context, comp evaluation.Component) (evaluation.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.components[comp.ID]
	if !ok {
		return evaluation.Component{}, evaluation.ErrComponentNotFound
	}
	comp = copyComponent(comp)
	comp.TemplateID = orig.TemplateID
	comp.CreatedAt = orig.CreatedAt
	comp.SubItems = nil
	repo.db.components[comp.ID] = &comp
	return repo.assembleComponent(&comp), nil
}

func (repo *EvaluationRepository) UpdateComponentWeights(_ context.Context, templateID string, weights map[string]float64, updatedAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id := range weights {
		if c, ok := repo.db.components[id]; !ok || c.TemplateID != templateID {
			return evaluation.ErrComponentNotFound
		}
	}
	for id, w := range weights {
		c := repo.db.components[id]
		c.WeightPercentage = w
		c.UpdatedAt = updatedAt
	}
	return nil
}

func (repo *EvaluationRepository) DeleteComponent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[id]; !ok {
		return evaluation.ErrComponentNotFound
	}
	repo.deleteComponent(id)
	return nil
}

func (repo *EvaluationRepository) CreateSubItem(_ context.Context, item evaluation.SubItem) (evaluation.SubItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[item.ComponentID]; !ok {
		return evaluation.SubItem{}, evaluation.ErrComponentNotFound
	}
	id := repo.insertSubItem(item)
	return *repo.db.subItems[id], nil
}

func (repo *EvaluationRepository) GetSubItem(_ context.Context, id string) (evaluation.SubItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if si, ok := repo.db.subItems[id]; ok {
		return *si, nil
	}
	return evaluation.SubItem{}, evaluation.ErrSubItemNotFound
}

func (repo *EvaluationRepository) UpdateSubItem(_ context.Context, item evaluation.SubItem) (evaluation.SubItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.subItems[item.ID]
	if !ok {
		return evaluation.SubItem{}, evaluation.ErrSubItemNotFound
	}
	item.ComponentID = orig.ComponentID
	item.CreatedAt = orig.CreatedAt
	repo.db.subItems[item.ID] = &item
	return item, nil
}

func (repo *EvaluationRepository) DeleteSubItem(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.subItems[id]; !ok {
		return evaluation.ErrSubItemNotFound
	}
	delete(repo.db.subItems, id)
	return nil
}

func copyComponent(c evaluation.Component) evaluation.Component {
	if c.Graders != nil {
		c.Graders = append([]evaluation.GraderWeight(nil), c.Graders...)
	}
	return c
}
