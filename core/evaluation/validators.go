package evaluation

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gradebook/core"
)

var (
	evalTypeTag  = "evaltype"
	evalTypeText = fmt.Sprintf("{0} must be one of %v", EvaluationTypes)
)

// RegisterValidators registers the evaluation rules on `v`.
func RegisterValidators(v *core.Validator) {
	_ = v.Engine().RegisterValidation(evalTypeTag, evalTypeValidation)
	v.RegisterTranslation(evalTypeTag, evalTypeText)
}

func evalTypeValidation(fl validator.FieldLevel) bool {
	return EvaluationType(fl.Field().String()).IsValid()
}

// NewTemplate contains information needed to create a new Template.
type NewTemplate struct {
	CourseTemplateID  string         `json:"course_template_id" yaml:"course_template_id" validate:"required"`
	Name              string         `json:"name" yaml:"name" validate:"required,max=200"`
	Description       string         `json:"description" yaml:"description,omitempty"`
	PassingTotalScore float64        `json:"passing_total_score" yaml:"passing_total_score" validate:"finite,gte=0,lte=100"`
	CreatedBy         string         `json:"created_by" yaml:"created_by,omitempty"`
	Components        []NewComponent `json:"components" yaml:"components" validate:"dive"`
}

func (nt *NewTemplate) Validate(v *core.Validator) error {
	nt.CourseTemplateID = core.CleanString(nt.CourseTemplateID)
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	nt.CreatedBy = core.CleanString(nt.CreatedBy)
	for i := range nt.Components {
		nt.Components[i].clean()
	}
	return v.Struct(nt)
}

// UpdateTemplate defines the header fields that may be modified on an existing Template.
type UpdateTemplate struct {
	Name              *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description       *string  `json:"description"`
	PassingTotalScore *float64 `json:"passing_total_score" validate:"omitempty,finite,gte=0,lte=100"`
}

func (ut *UpdateTemplate) Validate(v *core.Validator) error {
	cleanPtr(ut.Name)
	cleanPtr(ut.Description)
	return v.Struct(ut)
}

// NewComponent contains information needed to add a Component to a Template.
// Code is derived from Name when empty.
type NewComponent struct {
	Name             string         `json:"name" yaml:"name" validate:"required,max=200"`
	Code             string         `json:"code" yaml:"code,omitempty" validate:"omitempty,max=50,alphanum_"`
	Description      string         `json:"description" yaml:"description,omitempty"`
	WeightPercentage float64        `json:"weight_percentage" yaml:"weight_percentage" validate:"finite,gt=0,lte=100"`
	EvaluationType   EvaluationType `json:"evaluation_type" yaml:"evaluation_type" validate:"required,evaltype"`
	Graders          []GraderWeight `json:"graders" yaml:"graders,omitempty" validate:"dive"`
	OrderIndex       *int           `json:"order_index" yaml:"order_index,omitempty"`
	IsActive         *bool          `json:"is_active" yaml:"is_active,omitempty"`
	IsRequired       bool           `json:"is_required" yaml:"is_required,omitempty"`
	SubItems         []NewSubItem   `json:"sub_items" yaml:"sub_items" validate:"dive"`
}

func (nc *NewComponent) clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	for i := range nc.Graders {
		nc.Graders[i].GraderID = core.CleanString(nc.Graders[i].GraderID)
		nc.Graders[i].Name = core.CleanString(nc.Graders[i].Name)
	}
	for i := range nc.SubItems {
		nc.SubItems[i].clean()
	}
}

func (nc *NewComponent) Validate(v *core.Validator) error {
	nc.clean()
	return v.Struct(nc)
}

// UpdateComponent defines what information may be provided to modify an existing Component.
// Nil fields are left untouched.
type UpdateComponent struct {
	Name             *string         `json:"name" validate:"omitempty,min=1,max=200"`
	Description      *string         `json:"description"`
	WeightPercentage *float64        `json:"weight_percentage" validate:"omitempty,finite,gt=0,lte=100"`
	EvaluationType   *EvaluationType `json:"evaluation_type" validate:"omitempty,evaltype"`
	Graders          *[]GraderWeight `json:"graders"`
	OrderIndex       *int            `json:"order_index"`
	IsActive         *bool           `json:"is_active"`
	IsRequired       *bool           `json:"is_required"`
}

func (uc *UpdateComponent) Validate(v *core.Validator) error {
	cleanPtr(uc.Name)
	cleanPtr(uc.Description)
	if err := v.Struct(uc); err != nil {
		return err
	}
	if uc.Graders != nil {
		for i := range *uc.Graders {
			g := &(*uc.Graders)[i]
			g.GraderID = core.CleanString(g.GraderID)
			g.Name = core.CleanString(g.Name)
			if err := v.Struct(g); err != nil {
				return prefixFields(err, fmt.Sprintf("graders[%d].", i))
			}
		}
	}
	return nil
}

// NewSubItem contains information needed to add a SubItem to a Component.
type NewSubItem struct {
	Name        string  `json:"name" yaml:"name" validate:"required,max=200"`
	Code        string  `json:"code" yaml:"code,omitempty" validate:"omitempty,max=50,alphanum_"`
	Description string  `json:"description" yaml:"description,omitempty"`
	MaxScore    float64 `json:"max_score" yaml:"max_score" validate:"finite,gt=0"`
	OrderIndex  *int    `json:"order_index" yaml:"order_index,omitempty"`
}

func (ns *NewSubItem) clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code, true /* lower */)
	ns.Description = core.CleanString(ns.Description)
}

func (ns *NewSubItem) Validate(v *core.Validator) error {
	ns.clean()
	return v.Struct(ns)
}

type UpdateSubItem struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description"`
	MaxScore    *float64 `json:"max_score" validate:"omitempty,finite,gt=0"`
	OrderIndex  *int     `json:"order_index"`
}

func (us *UpdateSubItem) Validate(v *core.Validator) error {
	cleanPtr(us.Name)
	cleanPtr(us.Description)
	return v.Struct(us)
}

type ComponentWeight struct {
	ComponentID      string  `json:"component_id" validate:"required"`
	WeightPercentage float64 `json:"weight_percentage" validate:"finite,gt=0,lte=100"`
}

// SetWeights rebalances several component weights of one template at once.
type SetWeights struct {
	Weights []ComponentWeight `json:"weights" validate:"required,min=1,dive"`
}

func (sw *SetWeights) Validate(v *core.Validator) error {
	if err := v.Struct(sw); err != nil {
		return err
	}
	seen := make(map[string]bool, len(sw.Weights))
	for i, w := range sw.Weights {
		if seen[w.ComponentID] {
			return core.NewValidationError(
				ErrInvalidWeights,
				core.FieldError{Field: fmt.Sprintf("weights[%d].component_id", i), Error: "component listed more than once"},
			)
		}
		seen[w.ComponentID] = true
	}
	return nil
}

type SubItemScoreInput struct {
	SubItemID string  `json:"sub_item_id" validate:"required"`
	Score     float64 `json:"score" validate:"finite,gte=0"`
}

// SubmitGraderEvaluation is one grader's submission for one trainee on one component.
type SubmitGraderEvaluation struct {
	OfferingID   string              `json:"offering_id" validate:"required"`
	TraineeID    string              `json:"trainee_id" validate:"required"`
	ComponentID  string              `json:"component_id" validate:"required"`
	GraderID     string              `json:"grader_id" validate:"required"`
	GraderName   string              `json:"grader_name"`
	GraderWeight float64             `json:"grader_weight" validate:"finite,gte=0,lte=100"`
	Scores       []SubItemScoreInput `json:"scores" validate:"required,min=1,dive"`
	Feedback     string              `json:"feedback"`
	Notes        string              `json:"notes"`
}

func (sub *SubmitGraderEvaluation) Validate(v *core.Validator) error {
	sub.OfferingID = core.CleanString(sub.OfferingID)
	sub.TraineeID = core.CleanString(sub.TraineeID)
	sub.ComponentID = core.CleanString(sub.ComponentID)
	sub.GraderID = core.CleanString(sub.GraderID)
	sub.GraderName = core.CleanString(sub.GraderName)
	sub.Feedback = core.CleanString(sub.Feedback)
	sub.Notes = core.CleanString(sub.Notes)
	return v.Struct(sub)
}

// RecordExternalScore pushes a normalized 0-100 score computed by another subsystem.
type RecordExternalScore struct {
	OfferingID  string                 `json:"offering_id" validate:"required"`
	TraineeID   string                 `json:"trainee_id" validate:"required"`
	ComponentID string                 `json:"component_id" validate:"required"`
	Score       float64                `json:"score" validate:"finite,gte=0,lte=100"`
	Source      string                 `json:"source"`
	Breakdown   map[string]interface{} `json:"breakdown"`
}

func (res *RecordExternalScore) Validate(v *core.Validator) error {
	res.OfferingID = core.CleanString(res.OfferingID)
	res.TraineeID = core.CleanString(res.TraineeID)
	res.ComponentID = core.CleanString(res.ComponentID)
	res.Source = core.CleanString(res.Source)
	return v.Struct(res)
}

type OverrideGrade struct {
	TotalScore float64 `json:"total_score" validate:"finite,gte=0,lte=100"`
	Reason     string  `json:"reason" validate:"required"`
	ChangedBy  string  `json:"changed_by"`
}

func (og *OverrideGrade) Validate(v *core.Validator) error {
	og.Reason = core.CleanString(og.Reason)
	og.ChangedBy = core.CleanString(og.ChangedBy)
	return v.Struct(og)
}

type TemplateFilter struct {
	CourseTemplateID string `query:"course_template_id"`
	IsActive         *bool  `query:"is_active"`
	Search           string `query:"search"`
}

func (tf *TemplateFilter) Clean() {
	tf.CourseTemplateID = core.CleanString(tf.CourseTemplateID)
	tf.Search = core.CleanString(tf.Search)
}

// EvaluationFilter applies AND operation on its non-empty fields.
type EvaluationFilter struct {
	OfferingID  string `query:"offering_id"`
	TraineeID   string `query:"trainee_id"`
	ComponentID string `query:"component_id"`
	GraderID    string `query:"grader_id"`
}

func (ef EvaluationFilter) Match(ge GraderEvaluation) bool {
	return (ef.OfferingID == "" || ef.OfferingID == ge.OfferingID) &&
		(ef.TraineeID == "" || ef.TraineeID == ge.TraineeID) &&
		(ef.ComponentID == "" || ef.ComponentID == ge.ComponentID) &&
		(ef.GraderID == "" || ef.GraderID == ge.GraderID)
}

// validateGraders checks a component's grader configuration: unique ids and weights summing to 100.
func validateGraders(graders []GraderWeight, tolerance float64) error {
	if len(graders) == 0 {
		return nil
	}
	var (
		flds []core.FieldError
		sum  float64
	)
	seen := make(map[string]bool, len(graders))
	for i, g := range graders {
		if seen[g.GraderID] {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("graders[%d].grader_id", i),
				Error: "grader listed more than once",
			})
		}
		seen[g.GraderID] = true
		sum += g.Weight
	}
	if math.Abs(sum-100) > tolerance {
		flds = append(flds, core.FieldError{
			Field: "graders",
			Error: fmt.Sprintf("grader weights must sum to 100, got %g", sum),
		})
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrInvalidGraders, flds...)
	}
	return nil
}

func cleanPtr(s *string) {
	if s != nil {
		*s = core.CleanString(*s)
	}
}

// prefixFields prefixes the field names of a validation error.
func prefixFields(err error, prefix string) error {
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		return err
	}
	for i := range vErr.Fields {
		vErr.Fields[i].Field = prefix + vErr.Fields[i].Field
	}
	return vErr
}
