package evaluation

import (
	"context"
	"sort"

	"github.com/trezcool/gradebook/core"
)

const (
	reasonRecalculated  = "recalculated"
	reasonOverrideClear = "manual override cleared"
)

// CalculateComprehensiveGrade aggregates the current scores of a trainee into a grade and saves it.
// Re-running it without intervening writes yields the same total and component scores.
// A manually overridden grade is returned untouched.
func (svc *Service) CalculateComprehensiveGrade(ctx context.Context, offeringID, traineeID, templateID string) (ComprehensiveGrade, error) {
	key := GradeKey{
		OfferingID: core.CleanString(offeringID),
		TraineeID:  core.CleanString(traineeID),
		TemplateID: core.CleanString(templateID),
	}
	return svc.calculate(ctx, key, false, GradeChange{Reason: reasonRecalculated, ChangedBy: systemUser})
}

// calculate computes and saves the grade of `key`. Manual grades are only replaced when `force` is set.
func (svc *Service) calculate(ctx context.Context, key GradeKey, force bool, change GradeChange) (ComprehensiveGrade, error) {
	// captured before any read: a calculation based on older inputs never overwrites a newer one
	calculatedAt := svc.now()

	tmpl, err := svc.gradingTemplate(ctx, key.TemplateID)
	if err != nil {
		return ComprehensiveGrade{}, err
	}
	if len(tmpl.ActiveComponents()) == 0 {
		return ComprehensiveGrade{}, ErrComponentNotFound
	}
	if err = svc.checkEnrollment(ctx, key.OfferingID, key.TraineeID); err != nil {
		return ComprehensiveGrade{}, err
	}

	existing, err := svc.repo.GetGrade(ctx, key)
	switch {
	case err == nil:
		if existing.CalculationMethod == MethodManual && !force {
			svc.log.Debug("manual grade kept", key)
			return existing, nil
		}
	case !core.IsNotFound(err):
		return ComprehensiveGrade{}, err
	}

	inputs, err := svc.collectInputs(ctx, key, tmpl)
	if err != nil {
		return ComprehensiveGrade{}, err
	}
	res := Aggregate(tmpl, inputs, svc.precision)

	grade := ComprehensiveGrade{
		OfferingID:        key.OfferingID,
		TraineeID:         key.TraineeID,
		TemplateID:        tmpl.ID,
		TemplateVersion:   tmpl.Version,
		TotalScore:        res.TotalScore,
		PassingScore:      res.PassingScore,
		IsPassed:          res.IsPassed,
		ComponentScores:   res.ComponentScores,
		CalculationMethod: MethodAuto,
		CalculatedAt:      calculatedAt,
		CreatedAt:         calculatedAt,
		UpdatedAt:         calculatedAt,
	}
	grade, err = svc.repo.UpsertGrade(ctx, grade, change)
	if err != nil {
		return ComprehensiveGrade{}, err
	}
	svc.log.Info("comprehensive grade calculated", key, grade.TotalScore)
	return grade, nil
}

// OverrideGrade replaces the total of an existing grade by hand. Automatic recalculations
// leave the grade untouched until ClearOverride is called.
func (svc *Service) OverrideGrade(ctx context.Context, key GradeKey, og OverrideGrade) (ComprehensiveGrade, error) {
	if err := og.Validate(svc.validator); err != nil {
		return ComprehensiveGrade{}, err
	}
	calculatedAt := svc.now()
	grade, err := svc.repo.GetGrade(ctx, key)
	if err != nil {
		return ComprehensiveGrade{}, err
	}

	grade.TotalScore = core.Round(og.TotalScore, svc.precision)
	grade.IsPassed = grade.TotalScore >= grade.PassingScore
	grade.CalculationMethod = MethodManual
	grade.OverrideReason = og.Reason
	grade.CalculatedAt = calculatedAt
	grade.UpdatedAt = calculatedAt

	changedBy := og.ChangedBy
	if changedBy == "" {
		changedBy = systemUser
	}
	grade, err = svc.repo.UpsertGrade(ctx, grade, GradeChange{Reason: og.Reason, ChangedBy: changedBy})
	if err != nil {
		return ComprehensiveGrade{}, err
	}
	svc.log.Info("comprehensive grade overridden", key, grade.TotalScore, og.Reason)
	return grade, nil
}

// ClearOverride recalculates a manually overridden grade from its scores.
func (svc *Service) ClearOverride(ctx context.Context, key GradeKey, changedBy string) (ComprehensiveGrade, error) {
	if _, err := svc.repo.GetGrade(ctx, key); err != nil {
		return ComprehensiveGrade{}, err
	}
	changedBy = core.CleanString(changedBy)
	if changedBy == "" {
		changedBy = systemUser
	}
	return svc.calculate(ctx, key, true, GradeChange{Reason: reasonOverrideClear, ChangedBy: changedBy})
}

func (svc *Service) GetGrade(ctx context.Context, key GradeKey) (ComprehensiveGrade, error) {
	return svc.repo.GetGrade(ctx, key)
}

// ListGrades returns the grades of an offering ordered by rank, unranked grades last.
func (svc *Service) ListGrades(ctx context.Context, offeringID, templateID string) ([]ComprehensiveGrade, error) {
	grades, err := svc.repo.QueryGrades(ctx, offeringID, templateID)
	if err != nil {
		return nil, err
	}
	sortByRank(grades)
	return grades, nil
}

// ListGradesWithTrainees is ListGrades joined with the roster's trainee summaries.
func (svc *Service) ListGradesWithTrainees(ctx context.Context, offeringID, templateID string) ([]GradeWithTrainee, error) {
	grades, err := svc.ListGrades(ctx, offeringID, templateID)
	if err != nil {
		return nil, err
	}

	trainees := make(map[string]TraineeSummary)
	if svc.roster != nil {
		summaries, err := svc.roster.Trainees(ctx, offeringID)
		if err != nil {
			return nil, err
		}
		for _, ts := range summaries {
			trainees[ts.ID] = ts
		}
	}

	res := make([]GradeWithTrainee, 0, len(grades))
	for _, g := range grades {
		gwt := GradeWithTrainee{ComprehensiveGrade: g}
		if ts, ok := trainees[g.TraineeID]; ok {
			gwt.Trainee = &ts
		}
		res = append(res, gwt)
	}
	return res, nil
}

func (svc *Service) GradeHistory(ctx context.Context, gradeID string) ([]GradeHistory, error) {
	return svc.repo.QueryGradeHistory(ctx, gradeID)
}

func sortByRank(grades []ComprehensiveGrade) {
	sort.SliceStable(grades, func(i, j int) bool {
		ri, rj := grades[i].Rank, grades[j].Rank
		if (ri == 0) != (rj == 0) {
			return ri != 0
		}
		if ri != rj {
			return ri < rj
		}
		if grades[i].TotalScore != grades[j].TotalScore {
			return grades[i].TotalScore > grades[j].TotalScore
		}
		return grades[i].TraineeID < grades[j].TraineeID
	})
}
