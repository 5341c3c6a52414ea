package evaluation

import (
	"context"
	"fmt"

	"github.com/trezcool/gradebook/core"
)

// SubmitGraderEvaluation validates one grader's scores for every sub-item of a component
// and saves them, replacing the grader's previous submission for the same trainee and offering.
// Nothing is written when the submission is rejected.
func (svc *Service) SubmitGraderEvaluation(ctx context.Context, sub SubmitGraderEvaluation) (GraderEvaluation, error) {
	return svc.submit(ctx, sub, "")
}

// SubmitForTemplate is SubmitGraderEvaluation that also rejects components of other templates.
func (svc *Service) SubmitForTemplate(ctx context.Context, sub SubmitGraderEvaluation, templateID string) (GraderEvaluation, error) {
	return svc.submit(ctx, sub, core.CleanString(templateID))
}

// submit checks that the component belongs to `templateID` unless it is empty.
func (svc *Service) submit(ctx context.Context, sub SubmitGraderEvaluation, templateID string) (GraderEvaluation, error) {
	if err := sub.Validate(svc.validator); err != nil {
		return GraderEvaluation{}, err
	}
	comp, err := svc.repo.GetComponent(ctx, sub.ComponentID)
	if err != nil {
		return GraderEvaluation{}, err
	}
	if templateID != "" && comp.TemplateID != templateID {
		return GraderEvaluation{}, core.NewValidationError(ErrIncompleteScores, core.FieldError{
			Field: "component_id",
			Error: "component does not belong to this template",
		})
	}
	if !comp.EvaluationType.IsManual() {
		return GraderEvaluation{}, core.NewValidationError(ErrWrongScoreSource, core.FieldError{
			Field: "component_id",
			Error: fmt.Sprintf("component is scored by %s, record an external score instead", comp.EvaluationType),
		})
	}
	if !comp.IsActive {
		return GraderEvaluation{}, core.NewValidationError(ErrIncompleteScores, core.FieldError{
			Field: "component_id",
			Error: "component is not active",
		})
	}
	if _, err = svc.gradingTemplate(ctx, comp.TemplateID); err != nil {
		return GraderEvaluation{}, err
	}
	if err = svc.checkEnrollment(ctx, sub.OfferingID, sub.TraineeID); err != nil {
		return GraderEvaluation{}, err
	}

	ge, err := svc.buildEvaluation(comp, sub)
	if err != nil {
		svc.log.Info("grader evaluation rejected", sub.GraderID, err)
		return GraderEvaluation{}, err
	}

	ge, err = svc.repo.UpsertGraderEvaluation(ctx, ge)
	if err != nil {
		return GraderEvaluation{}, err
	}
	svc.log.Info("grader evaluation saved", ge.ID, ge.GraderID, comp.Code)
	return ge, nil
}

// buildEvaluation matches the submitted scores against the sub-items of `comp`.
func (svc *Service) buildEvaluation(comp Component, sub SubmitGraderEvaluation) (GraderEvaluation, error) {
	var flds []core.FieldError

	scores := make(map[string]float64, len(sub.Scores))
	for i, s := range sub.Scores {
		field := fmt.Sprintf("scores[%d]", i)
		item, ok := comp.SubItem(s.SubItemID)
		switch {
		case !ok:
			flds = append(flds, core.FieldError{Field: field + ".sub_item_id", Error: "unknown sub-item for this component"})
		case hasKey(scores, s.SubItemID):
			flds = append(flds, core.FieldError{Field: field + ".sub_item_id", Error: "sub-item scored more than once"})
		case s.Score < 0 || s.Score > item.MaxScore:
			flds = append(flds, core.FieldError{Field: field + ".score", Error: fmt.Sprintf("score must be between 0 and %g", item.MaxScore)})
		}
		scores[s.SubItemID] = s.Score
	}

	items := make([]SubItem, len(comp.SubItems))
	copy(items, comp.SubItems)
	SortSubItems(items)
	for _, item := range items {
		if _, ok := scores[item.ID]; !ok {
			flds = append(flds, core.FieldError{Field: "scores", Error: fmt.Sprintf("missing score for sub-item %q", item.Code)})
		}
	}

	weight := sub.GraderWeight
	name := sub.GraderName
	if len(comp.Graders) > 0 {
		cfg, ok := comp.Grader(sub.GraderID)
		if !ok {
			flds = append(flds, core.FieldError{Field: "grader_id", Error: "grader is not configured for this component"})
		}
		weight = cfg.Weight
		if name == "" {
			name = cfg.Name
		}
	}

	if len(flds) > 0 {
		return GraderEvaluation{}, core.NewValidationError(ErrIncompleteScores, flds...)
	}

	now := svc.now()
	ge := GraderEvaluation{
		OfferingID:             sub.OfferingID,
		TraineeID:              sub.TraineeID,
		ComponentID:            comp.ID,
		GraderID:               sub.GraderID,
		GraderName:             name,
		GraderWeightPercentage: weight,
		SubItemScores:          make([]SubItemScore, 0, len(items)),
		Feedback:               sub.Feedback,
		Notes:                  sub.Notes,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	var total, max float64
	for _, item := range items {
		ge.SubItemScores = append(ge.SubItemScores, SubItemScore{
			SubItemID: item.ID,
			Name:      item.Name,
			Score:     scores[item.ID],
			MaxScore:  item.MaxScore,
		})
		total += scores[item.ID]
		max += item.MaxScore
	}
	ge.TotalScore = core.Round(total, svc.precision)
	ge.MaxPossibleScore = core.Round(max, svc.precision)
	return ge, nil
}

func hasKey(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}

func (svc *Service) QueryGraderEvaluations(ctx context.Context, filter EvaluationFilter) ([]GraderEvaluation, error) {
	return svc.repo.QueryGraderEvaluations(ctx, filter)
}

// DeleteGraderEvaluation removes a submission. The trainee's grade is left as is until recalculated.
func (svc *Service) DeleteGraderEvaluation(ctx context.Context, id string) error {
	if err := svc.repo.DeleteGraderEvaluation(ctx, id); err != nil {
		return err
	}
	svc.log.Info("grader evaluation deleted", id)
	return nil
}

// RecordExternalScore saves the normalized score of a non-manual component, replacing the previous one.
func (svc *Service) RecordExternalScore(ctx context.Context, res RecordExternalScore) (ExternalScore, error) {
	if err := res.Validate(svc.validator); err != nil {
		return ExternalScore{}, err
	}
	comp, err := svc.repo.GetComponent(ctx, res.ComponentID)
	if err != nil {
		return ExternalScore{}, err
	}
	if comp.EvaluationType.IsManual() {
		return ExternalScore{}, core.NewValidationError(ErrWrongScoreSource, core.FieldError{
			Field: "component_id",
			Error: "component is scored by graders, submit a grader evaluation instead",
		})
	}
	if _, err = svc.gradingTemplate(ctx, comp.TemplateID); err != nil {
		return ExternalScore{}, err
	}
	if err = svc.checkEnrollment(ctx, res.OfferingID, res.TraineeID); err != nil {
		return ExternalScore{}, err
	}

	source := res.Source
	if source == "" {
		source = string(comp.EvaluationType)
	}
	es := ExternalScore{
		OfferingID:  res.OfferingID,
		TraineeID:   res.TraineeID,
		ComponentID: comp.ID,
		Score:       core.Round(res.Score, svc.precision),
		Source:      source,
		Breakdown:   res.Breakdown,
		RecordedAt:  svc.now(),
	}
	es, err = svc.repo.UpsertExternalScore(ctx, es)
	if err != nil {
		return ExternalScore{}, err
	}
	svc.log.Info("external score recorded", es.ID, comp.Code, source)
	return es, nil
}
