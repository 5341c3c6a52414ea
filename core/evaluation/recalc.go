package evaluation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

// SubmitAndRecalculate saves a grader evaluation then refreshes the trainee's grade.
// A failed recalculation does not undo the saved evaluation: it is reported in Submission.RecalcErr
// and the returned error is nil. Ranks are not refreshed, see RecalculateRanks.
func (svc *Service) SubmitAndRecalculate(ctx context.Context, sub SubmitGraderEvaluation, templateID string) (Submission, error) {
	templateID = core.CleanString(templateID)
	ge, err := svc.submit(ctx, sub, templateID)
	if err != nil {
		return Submission{}, err
	}

	res := Submission{Evaluation: ge}
	key := GradeKey{OfferingID: ge.OfferingID, TraineeID: ge.TraineeID, TemplateID: templateID}
	grade, err := svc.Recalculate(ctx, key)
	if err != nil {
		svc.log.Error("grade not refreshed after submission", key, err)
		res.RecalcErr = err
		return res, nil
	}
	res.Grade = &grade
	return res, nil
}

// Recalculate is CalculateComprehensiveGrade retried when a concurrent calculation wins the write.
func (svc *Service) Recalculate(ctx context.Context, key GradeKey) (ComprehensiveGrade, error) {
	var (
		grade ComprehensiveGrade
		err   error
	)
	for attempt := 0; attempt <= svc.maxRetries; attempt++ {
		grade, err = svc.calculate(ctx, key, false, GradeChange{Reason: reasonRecalculated, ChangedBy: systemUser})
		if !core.IsStaleState(err) {
			break
		}
		svc.log.Warn("grade calculation stale, retrying", key, attempt+1)
	}
	return grade, err
}

// RecalculateOffering recalculates the grade of every trainee of an offering having scores,
// a grade or an enrollment, then ranks the offering. It returns the number of grades calculated.
func (svc *Service) RecalculateOffering(ctx context.Context, offeringID, templateID string) (int, error) {
	offeringID = core.CleanString(offeringID)
	templateID = core.CleanString(templateID)
	if _, err := svc.repo.GetTemplate(ctx, templateID); err != nil {
		return 0, err
	}

	trainees, err := svc.offeringTrainees(ctx, offeringID, templateID)
	if err != nil {
		return 0, err
	}
	for _, traineeID := range trainees {
		key := GradeKey{OfferingID: offeringID, TraineeID: traineeID, TemplateID: templateID}
		if _, err = svc.Recalculate(ctx, key); err != nil {
			return 0, errors.Wrapf(err, "recalculating %s", key)
		}
	}
	if err = svc.RecalculateRanks(ctx, offeringID, templateID); err != nil {
		return len(trainees), err
	}
	return len(trainees), nil
}

func (svc *Service) offeringTrainees(ctx context.Context, offeringID, templateID string) ([]string, error) {
	seen := make(map[string]bool)
	var trainees []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			trainees = append(trainees, id)
		}
	}

	if svc.roster != nil {
		summaries, err := svc.roster.Trainees(ctx, offeringID)
		if err != nil {
			return nil, err
		}
		for _, ts := range summaries {
			add(ts.ID)
		}
	} else {
		evals, err := svc.repo.QueryGraderEvaluations(ctx, EvaluationFilter{OfferingID: offeringID})
		if err != nil {
			return nil, err
		}
		for _, ge := range evals {
			add(ge.TraineeID)
		}
		grades, err := svc.repo.QueryGrades(ctx, offeringID, templateID)
		if err != nil {
			return nil, err
		}
		for _, g := range grades {
			add(g.TraineeID)
		}
	}
	return trainees, nil
}
