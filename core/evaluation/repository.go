package evaluation

import (
	"context"
	"time"
)

// Repository persists templates, scoring rows and grades.
// Implementations assign ids to records created without one.
type Repository interface {
	// CreateTemplate inserts the template with all its components and sub-items atomically.
	CreateTemplate(ctx context.Context, tmpl Template) (Template, error)
	// GetTemplate returns the template with its components and sub-items ordered by OrderIndex.
	GetTemplate(ctx context.Context, id string) (Template, error)
	QueryTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error)
	// UpdateTemplate saves the header fields of `tmpl`; components are ignored.
	UpdateTemplate(ctx context.Context, tmpl Template) (Template, error)
	// DeleteTemplate deletes the template, its components and their sub-items.
	DeleteTemplate(ctx context.Context, id string) error
	// IsTemplateGraded reports whether any ComprehensiveGrade references the template.
	IsTemplateGraded(ctx context.Context, id string) (bool, error)

	// CreateComponent inserts the component with its sub-items.
	CreateComponent(ctx context.Context, comp Component) (Component, error)
	GetComponent(ctx context.Context, id string) (Component, error)
	// UpdateComponent saves the component fields; sub-items are ignored.
	UpdateComponent(ctx context.Context, comp Component) (Component, error)
	// UpdateComponentWeights sets the weights of several components of one template atomically.
	UpdateComponentWeights(ctx context.Context, templateID string, weights map[string]float64, updatedAt time.Time) error
	DeleteComponent(ctx context.Context, id string) error

	CreateSubItem(ctx context.Context, item SubItem) (SubItem, error)
	GetSubItem(ctx context.Context, id string) (SubItem, error)
	UpdateSubItem(ctx context.Context, item SubItem) (SubItem, error)
	DeleteSubItem(ctx context.Context, id string) error

	// UpsertGraderEvaluation inserts or replaces the row keyed by (offering, trainee, component, grader).
	// A replaced row keeps its id and CreatedAt.
	UpsertGraderEvaluation(ctx context.Context, ge GraderEvaluation) (GraderEvaluation, error)
	QueryGraderEvaluations(ctx context.Context, filter EvaluationFilter) ([]GraderEvaluation, error)
	DeleteGraderEvaluation(ctx context.Context, id string) error

	// UpsertExternalScore inserts or replaces the row keyed by (offering, trainee, component).
	UpsertExternalScore(ctx context.Context, es ExternalScore) (ExternalScore, error)
	GetExternalScore(ctx context.Context, offeringID, traineeID, componentID string) (ExternalScore, error)

	GetGrade(ctx context.Context, key GradeKey) (ComprehensiveGrade, error)
	// QueryGrades returns the grades of an offering for a template.
	QueryGrades(ctx context.Context, offeringID, templateID string) ([]ComprehensiveGrade, error)
	// UpsertGrade inserts or replaces the grade keyed by (offering, trainee, template).
	//  - fails with ErrStaleGrade when the stored grade was calculated after `grade.CalculatedAt`.
	//  - keeps the stored id, CreatedAt, Rank, TotalTrainees and RankedAt.
	//  - sets RankStale when the row is new or its total changed.
	//  - appends a GradeHistory row when the row is new or its total or verdict changed.
	UpsertGrade(ctx context.Context, grade ComprehensiveGrade, change GradeChange) (ComprehensiveGrade, error)
	// ApplyRanks writes all ranks of an offering in one atomic step and clears RankStale.
	// It fails with ErrStaleRanking, writing nothing, when the set of grades or any of their
	// totals or calculation times differ from the ones the ranks were computed from.
	ApplyRanks(ctx context.Context, offeringID, templateID string, ranks []RankUpdate, rankedAt time.Time) error
	QueryGradeHistory(ctx context.Context, gradeID string) ([]GradeHistory, error)
}

// Roster resolves the trainees enrolled in an offering.
type Roster interface {
	IsEnrolled(ctx context.Context, offeringID, traineeID string) (bool, error)
	Trainees(ctx context.Context, offeringID string) ([]TraineeSummary, error)
}

// ScoreSource provides the normalized score of a non-manual component.
// ok is false when no score exists yet for the trainee.
type ScoreSource interface {
	ComponentScore(ctx context.Context, key GradeKey, comp Component) (es ExternalScore, ok bool, err error)
}

// ScoreSourceFunc adapts a function to the ScoreSource interface.
type ScoreSourceFunc func(ctx context.Context, key GradeKey, comp Component) (ExternalScore, bool, error)

func (f ScoreSourceFunc) ComponentScore(ctx context.Context, key GradeKey, comp Component) (ExternalScore, bool, error) {
	return f(ctx, key, comp)
}
