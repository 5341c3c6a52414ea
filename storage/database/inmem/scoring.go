package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/gradebook/core/evaluation"
)

func (repo *EvaluationRepository) UpsertGraderEvaluation(_ context.Context, ge evaluation.GraderEvaluation) (evaluation.GraderEvaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ge.ID = newID()
	for _, orig := range repo.db.evaluations {
		if orig.OfferingID == ge.OfferingID && orig.TraineeID == ge.TraineeID &&
			orig.ComponentID == ge.ComponentID && orig.GraderID == ge.GraderID {
			ge.ID = orig.ID
			ge.CreatedAt = orig.CreatedAt
			break
		}
	}
	ge.SubItemScores = append([]evaluation.SubItemScore(nil), ge.SubItemScores...)
	repo.db.evaluations[ge.ID] = &ge
	return ge, nil
}

func (repo *EvaluationRepository) QueryGraderEvaluations(_ context.Context, filter evaluation.EvaluationFilter) ([]evaluation.GraderEvaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evals := make([]evaluation.GraderEvaluation, 0)
	for _, ge := range repo.db.evaluations {
		if filter.Match(*ge) {
			cp := *ge
			cp.SubItemScores = append([]evaluation.SubItemScore(nil), ge.SubItemScores...)
			evals = append(evals, cp)
		}
	}
	sort.Slice(evals, func(i, j int) bool {
		a, b := evals[i], evals[j]
		if a.TraineeID != b.TraineeID {
			return a.TraineeID < b.TraineeID
		}
		if a.ComponentID != b.ComponentID {
			return a.ComponentID < b.ComponentID
		}
		return a.GraderID < b.GraderID
	})
	return evals, nil
}

func (repo *EvaluationRepository) DeleteGraderEvaluation(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.evaluations[id]; !ok {
		return evaluation.ErrEvaluationNotFound
	}
	delete(repo.db.evaluations, id)
	return nil
}

func (repo *EvaluationRepository) UpsertExternalScore(_ context.Context, es evaluation.ExternalScore) (evaluation.ExternalScore, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	es.ID = newID()
	for _, orig := range repo.db.scores {
		if orig.OfferingID == es.OfferingID && orig.TraineeID == es.TraineeID && orig.ComponentID == es.ComponentID {
			es.ID = orig.ID
			break
		}
	}
	es.Breakdown = copyMap(es.Breakdown)
	repo.db.scores[es.ID] = &es
	return copyExternalScore(es), nil
}

func (repo *EvaluationRepository) GetExternalScore(_ context.Context, offeringID, traineeID, componentID string) (evaluation.ExternalScore, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, es := range repo.db.scores {
		if es.OfferingID == offeringID && es.TraineeID == traineeID && es.ComponentID == componentID {
			return copyExternalScore(*es), nil
		}
	}
	return evaluation.ExternalScore{}, evaluation.ErrScoreNotFound
}

func copyExternalScore(es evaluation.ExternalScore) evaluation.ExternalScore {
	es.Breakdown = copyMap(es.Breakdown)
	return es
}
