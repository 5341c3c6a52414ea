package evaluation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/trezcool/gradebook/core"
)

const (
	componentCodeFallback = "component"
	subItemCodeFallback   = "item"
)

func (svc *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *Service) QueryTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error) {
	filter.Clean()
	return svc.repo.QueryTemplates(ctx, filter)
}

// CreateTemplate creates an inactive template, version 1, with its components and sub-items.
func (svc *Service) CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error) {
	if err := nt.Validate(svc.validator); err != nil {
		return Template{}, err
	}

	now := svc.now()
	tmpl := Template{
		CourseTemplateID:  nt.CourseTemplateID,
		Name:              nt.Name,
		Description:       nt.Description,
		PassingTotalScore: nt.PassingTotalScore,
		Version:           1,
		CreatedBy:         nt.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i, nc := range nt.Components {
		comp, err := svc.buildComponent(tmpl.Components, nc, i, now)
		if err != nil {
			return Template{}, prefixFields(err, fmt.Sprintf("components[%d].", i))
		}
		tmpl.Components = append(tmpl.Components, comp)
	}
	if err := svc.checkWeights(tmpl); err != nil {
		return Template{}, err
	}

	tmpl, err := svc.repo.CreateTemplate(ctx, tmpl)
	if err != nil {
		return Template{}, err
	}
	svc.log.Info("evaluation template created", tmpl.ID, tmpl.Name)
	return tmpl, nil
}

// UpdateTemplate modifies the template header. It is allowed on locked templates:
// grades keep the passing score they were calculated with.
func (svc *Service) UpdateTemplate(ctx context.Context, id string, ut UpdateTemplate) (Template, error) {
	if err := ut.Validate(svc.validator); err != nil {
		return Template{}, err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if ut.Name != nil {
		tmpl.Name = *ut.Name
	}
	if ut.Description != nil {
		tmpl.Description = *ut.Description
	}
	if ut.PassingTotalScore != nil {
		tmpl.PassingTotalScore = *ut.PassingTotalScore
	}
	tmpl.UpdatedAt = svc.now()
	return svc.repo.UpdateTemplate(ctx, tmpl)
}

// DeleteTemplate deletes a template that was never used for grading, with its components and sub-items.
func (svc *Service) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTemplate(ctx, id); err != nil {
		return err
	}
	if err := svc.ensureUnlocked(ctx, id); err != nil {
		return err
	}
	if err := svc.repo.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	svc.log.Info("evaluation template deleted", id)
	return nil
}

// ActivateTemplate makes the template usable for grading.
// Active component weights must sum to 100 and every active instructor_manual component needs a sub-item.
func (svc *Service) ActivateTemplate(ctx context.Context, id string) (Template, error) {
	return svc.setActive(ctx, id, true)
}

func (svc *Service) DeactivateTemplate(ctx context.Context, id string) (Template, error) {
	return svc.setActive(ctx, id, false)
}

func (svc *Service) setActive(ctx context.Context, id string, active bool) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if tmpl.IsActive == active {
		return tmpl, nil
	}
	tmpl.IsActive = active
	if active {
		if err = svc.checkActivatable(tmpl); err != nil {
			return Template{}, err
		}
	}
	tmpl.UpdatedAt = svc.now()
	return svc.repo.UpdateTemplate(ctx, tmpl)
}

// NewTemplateVersion copies the template with its components and sub-items into a new inactive template.
// The copy gets the next version number of the course template and references its source as parent.
func (svc *Service) NewTemplateVersion(ctx context.Context, id, createdBy string) (Template, error) {
	src, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	siblings, err := svc.repo.QueryTemplates(ctx, TemplateFilter{CourseTemplateID: src.CourseTemplateID})
	if err != nil {
		return Template{}, err
	}
	version := src.Version
	for _, t := range siblings {
		if t.Version > version {
			version = t.Version
		}
	}

	now := svc.now()
	tmpl := Template{
		CourseTemplateID:  src.CourseTemplateID,
		Name:              src.Name,
		Description:       src.Description,
		PassingTotalScore: src.PassingTotalScore,
		Version:           version + 1,
		ParentID:          src.ID,
		CreatedBy:         core.CleanString(createdBy),
		CreatedAt:         now,
		UpdatedAt:         now,
		Components:        make([]Component, 0, len(src.Components)),
	}
	for _, c := range src.Components {
		comp := c
		comp.ID, comp.TemplateID = "", ""
		comp.CreatedAt, comp.UpdatedAt = now, now
		comp.Graders = append([]GraderWeight(nil), c.Graders...)
		comp.SubItems = make([]SubItem, 0, len(c.SubItems))
		for _, si := range c.SubItems {
			si.ID, si.ComponentID = "", ""
			si.CreatedAt, si.UpdatedAt = now, now
			comp.SubItems = append(comp.SubItems, si)
		}
		tmpl.Components = append(tmpl.Components, comp)
	}

	tmpl, err = svc.repo.CreateTemplate(ctx, tmpl)
	if err != nil {
		return Template{}, err
	}
	svc.log.Info("evaluation template versioned", src.ID, tmpl.ID, fmt.Sprintf("v%d", tmpl.Version))
	return tmpl, nil
}

func (svc *Service) AddComponent(ctx context.Context, templateID string, nc NewComponent) (Component, error) {
	if err := nc.Validate(svc.validator); err != nil {
		return Component{}, err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return Component{}, err
	}
	if err = svc.ensureUnlocked(ctx, templateID); err != nil {
		return Component{}, err
	}

	comp, err := svc.buildComponent(tmpl.Components, nc, len(tmpl.Components), svc.now())
	if err != nil {
		return Component{}, err
	}
	comp.TemplateID = tmpl.ID
	tmpl.Components = append(tmpl.Components, comp)
	if err = svc.checkWeights(tmpl); err != nil {
		return Component{}, err
	}
	return svc.repo.CreateComponent(ctx, comp)
}

func (svc *Service) UpdateComponent(ctx context.Context, id string, uc UpdateComponent) (Component, error) {
	if err := uc.Validate(svc.validator); err != nil {
		return Component{}, err
	}
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return Component{}, err
	}
	if err = svc.ensureUnlocked(ctx, comp.TemplateID); err != nil {
		return Component{}, err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, comp.TemplateID)
	if err != nil {
		return Component{}, err
	}

	if uc.Name != nil && *uc.Name != comp.Name {
		comp.Name = *uc.Name
		comp.Code = core.UniqueSlug(comp.Name, componentCodeFallback, componentCodeTaken(tmpl.Components, comp.ID))
	}
	if uc.Description != nil {
		comp.Description = *uc.Description
	}
	if uc.WeightPercentage != nil {
		comp.WeightPercentage = *uc.WeightPercentage
	}
	if uc.EvaluationType != nil {
		comp.EvaluationType = *uc.EvaluationType
	}
	if uc.Graders != nil {
		if err = validateGraders(*uc.Graders, svc.tolerance); err != nil {
			return Component{}, err
		}
		comp.Graders = *uc.Graders
	}
	if uc.OrderIndex != nil {
		comp.OrderIndex = *uc.OrderIndex
	}
	if uc.IsActive != nil {
		comp.IsActive = *uc.IsActive
	}
	if uc.IsRequired != nil {
		comp.IsRequired = *uc.IsRequired
	}
	comp.UpdatedAt = svc.now()

	for i := range tmpl.Components {
		if tmpl.Components[i].ID == comp.ID {
			tmpl.Components[i] = comp
		}
	}
	if err = svc.checkWeights(tmpl); err != nil {
		return Component{}, err
	}
	return svc.repo.UpdateComponent(ctx, comp)
}

// RemoveComponent deletes a component and its sub-items.
func (svc *Service) RemoveComponent(ctx context.Context, id string) error {
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.ensureUnlocked(ctx, comp.TemplateID); err != nil {
		return err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, comp.TemplateID)
	if err != nil {
		return err
	}

	comps := make([]Component, 0, len(tmpl.Components))
	for _, c := range tmpl.Components {
		if c.ID != id {
			comps = append(comps, c)
		}
	}
	tmpl.Components = comps
	if err = svc.checkWeights(tmpl); err != nil {
		return err
	}
	return svc.repo.DeleteComponent(ctx, id)
}

// SetComponentWeights rebalances the weights of several components of a template in one step.
func (svc *Service) SetComponentWeights(ctx context.Context, templateID string, sw SetWeights) (Template, error) {
	if err := sw.Validate(svc.validator); err != nil {
		return Template{}, err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	if err = svc.ensureUnlocked(ctx, templateID); err != nil {
		return Template{}, err
	}

	weights := make(map[string]float64, len(sw.Weights))
	for _, w := range sw.Weights {
		if _, ok := tmpl.Component(w.ComponentID); !ok {
			return Template{}, ErrComponentNotFound
		}
		weights[w.ComponentID] = w.WeightPercentage
	}
	for i, c := range tmpl.Components {
		if w, ok := weights[c.ID]; ok {
			tmpl.Components[i].WeightPercentage = w
		}
	}
	if err = svc.checkWeights(tmpl); err != nil {
		return Template{}, err
	}

	if err = svc.repo.UpdateComponentWeights(ctx, templateID, weights, svc.now()); err != nil {
		return Template{}, err
	}
	return svc.repo.GetTemplate(ctx, templateID)
}

func (svc *Service) AddSubItem(ctx context.Context, componentID string, ns NewSubItem) (SubItem, error) {
	if err := ns.Validate(svc.validator); err != nil {
		return SubItem{}, err
	}
	comp, err := svc.repo.GetComponent(ctx, componentID)
	if err != nil {
		return SubItem{}, err
	}
	if err = svc.ensureUnlocked(ctx, comp.TemplateID); err != nil {
		return SubItem{}, err
	}

	item := buildSubItem(comp.SubItems, ns, len(comp.SubItems), svc.now())
	item.ComponentID = comp.ID
	return svc.repo.CreateSubItem(ctx, item)
}

func (svc *Service) UpdateSubItem(ctx context.Context, id string, us UpdateSubItem) (SubItem, error) {
	if err := us.Validate(svc.validator); err != nil {
		return SubItem{}, err
	}
	item, err := svc.repo.GetSubItem(ctx, id)
	if err != nil {
		return SubItem{}, err
	}
	comp, err := svc.repo.GetComponent(ctx, item.ComponentID)
	if err != nil {
		return SubItem{}, err
	}
	if err = svc.ensureUnlocked(ctx, comp.TemplateID); err != nil {
		return SubItem{}, err
	}

	if us.Name != nil && *us.Name != item.Name {
		item.Name = *us.Name
		item.Code = core.UniqueSlug(item.Name, subItemCodeFallback, subItemCodeTaken(comp.SubItems, item.ID))
	}
	if us.Description != nil {
		item.Description = *us.Description
	}
	if us.MaxScore != nil {
		item.MaxScore = *us.MaxScore
	}
	if us.OrderIndex != nil {
		item.OrderIndex = *us.OrderIndex
	}
	item.UpdatedAt = svc.now()
	return svc.repo.UpdateSubItem(ctx, item)
}

func (svc *Service) RemoveSubItem(ctx context.Context, id string) error {
	item, err := svc.repo.GetSubItem(ctx, id)
	if err != nil {
		return err
	}
	comp, err := svc.repo.GetComponent(ctx, item.ComponentID)
	if err != nil {
		return err
	}
	if err = svc.ensureUnlocked(ctx, comp.TemplateID); err != nil {
		return err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, comp.TemplateID)
	if err != nil {
		return err
	}

	if tmpl.IsActive {
		for i, c := range tmpl.Components {
			if c.ID != comp.ID {
				continue
			}
			items := make([]SubItem, 0, len(c.SubItems))
			for _, si := range c.SubItems {
				if si.ID != id {
					items = append(items, si)
				}
			}
			tmpl.Components[i].SubItems = items
		}
		if err = svc.checkActivatable(tmpl); err != nil {
			return err
		}
	}
	return svc.repo.DeleteSubItem(ctx, id)
}

// ensureUnlocked rejects shape changes on templates already used for grading.
func (svc *Service) ensureUnlocked(ctx context.Context, templateID string) error {
	graded, err := svc.repo.IsTemplateGraded(ctx, templateID)
	if err != nil {
		return err
	}
	if graded {
		svc.log.Warn("evaluation template locked", templateID)
		return core.NewValidationError(ErrTemplateLocked, core.FieldError{Field: "template_id", Error: ErrTemplateLocked.Error()})
	}
	return nil
}

// checkWeights rejects active weights above 100; an active template must also stay activatable.
func (svc *Service) checkWeights(tmpl Template) error {
	if sum := tmpl.ActiveWeightSum(); sum > 100+svc.tolerance {
		return core.NewValidationError(ErrInvalidWeights, core.FieldError{
			Field: "weight_percentage",
			Error: fmt.Sprintf("active component weights sum to %g, which exceeds 100", core.Round(sum, svc.precision)),
		})
	}
	if tmpl.IsActive {
		return svc.checkActivatable(tmpl)
	}
	return nil
}

func (svc *Service) checkActivatable(tmpl Template) error {
	var flds []core.FieldError
	active := tmpl.ActiveComponents()
	if len(active) == 0 {
		flds = append(flds, core.FieldError{Field: "components", Error: "at least one active component is required"})
	}
	if sum := tmpl.ActiveWeightSum(); math.Abs(sum-100) > svc.tolerance {
		flds = append(flds, core.FieldError{
			Field: "weight_percentage",
			Error: fmt.Sprintf("active component weights must sum to 100, got %g", core.Round(sum, svc.precision)),
		})
	}
	for _, c := range active {
		if c.EvaluationType.IsManual() && len(c.SubItems) == 0 {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("components.%s.sub_items", c.Code),
				Error: "an instructor_manual component needs at least one sub-item",
			})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrNotActivatable, flds...)
	}
	return nil
}

func (svc *Service) buildComponent(siblings []Component, nc NewComponent, order int, now time.Time) (Component, error) {
	if err := validateGraders(nc.Graders, svc.tolerance); err != nil {
		return Component{}, err
	}

	name := nc.Code
	if name == "" {
		name = nc.Name
	}
	comp := Component{
		Name:             nc.Name,
		Code:             core.UniqueSlug(name, componentCodeFallback, componentCodeTaken(siblings, "")),
		Description:      nc.Description,
		WeightPercentage: nc.WeightPercentage,
		EvaluationType:   nc.EvaluationType,
		Graders:          nc.Graders,
		OrderIndex:       order,
		IsActive:         true,
		IsRequired:       nc.IsRequired,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if nc.OrderIndex != nil {
		comp.OrderIndex = *nc.OrderIndex
	}
	if nc.IsActive != nil {
		comp.IsActive = *nc.IsActive
	}
	for i, ns := range nc.SubItems {
		comp.SubItems = append(comp.SubItems, buildSubItem(comp.SubItems, ns, i, now))
	}
	return comp, nil
}

func buildSubItem(siblings []SubItem, ns NewSubItem, order int, now time.Time) SubItem {
	name := ns.Code
	if name == "" {
		name = ns.Name
	}
	item := SubItem{
		Name:        ns.Name,
		Code:        core.UniqueSlug(name, subItemCodeFallback, subItemCodeTaken(siblings, "")),
		Description: ns.Description,
		MaxScore:    ns.MaxScore,
		OrderIndex:  order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ns.OrderIndex != nil {
		item.OrderIndex = *ns.OrderIndex
	}
	return item
}

func componentCodeTaken(comps []Component, excludedID string) func(string) bool {
	return func(code string) bool {
		for _, c := range comps {
			if c.Code == code && (excludedID == "" || c.ID != excludedID) {
				return true
			}
		}
		return false
	}
}

func subItemCodeTaken(items []SubItem, excludedID string) func(string) bool {
	return func(code string) bool {
		for _, si := range items {
			if si.Code == code && (excludedID == "" || si.ID != excludedID) {
				return true
			}
		}
		return false
	}
}
