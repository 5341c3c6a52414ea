package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core/evaluation"
)

func marshalJSON(v interface{}) (types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return types.JSONText(b), nil
}

type graderEvaluationRow struct {
	ID                     string         `db:"id"`
	OfferingID             string         `db:"offering_id"`
	TraineeID              string         `db:"trainee_id"`
	ComponentID            string         `db:"component_id"`
	GraderID               string         `db:"grader_id"`
	GraderName             null.String    `db:"grader_name"`
	GraderWeightPercentage float64        `db:"grader_weight_percentage"`
	SubItemScores          types.JSONText `db:"sub_item_scores"`
	TotalScore             float64        `db:"total_score"`
	MaxPossibleScore       float64        `db:"max_possible_score"`
	Feedback               null.String    `db:"feedback"`
	Notes                  null.String    `db:"notes"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func toGraderEvaluationRow(ge evaluation.GraderEvaluation) (graderEvaluationRow, error) {
	scores, err := marshalJSON(ge.SubItemScores)
	if err != nil {
		return graderEvaluationRow{}, errors.Wrap(err, "encoding sub-item scores")
	}
	return graderEvaluationRow{
		ID:                     ge.ID,
		OfferingID:             ge.OfferingID,
		TraineeID:              ge.TraineeID,
		ComponentID:            ge.ComponentID,
		GraderID:               ge.GraderID,
		GraderName:             null.NewString(ge.GraderName, ge.GraderName != ""),
		GraderWeightPercentage: ge.GraderWeightPercentage,
		SubItemScores:          scores,
		TotalScore:             ge.TotalScore,
		MaxPossibleScore:       ge.MaxPossibleScore,
		Feedback:               null.NewString(ge.Feedback, ge.Feedback != ""),
		Notes:                  null.NewString(ge.Notes, ge.Notes != ""),
		CreatedAt:              ge.CreatedAt.UTC(),
		UpdatedAt:              ge.UpdatedAt.UTC(),
	}, nil
}

func (r graderEvaluationRow) toGraderEvaluation() (evaluation.GraderEvaluation, error) {
	ge := evaluation.GraderEvaluation{
		ID:                     r.ID,
		OfferingID:             r.OfferingID,
		TraineeID:              r.TraineeID,
		ComponentID:            r.ComponentID,
		GraderID:               r.GraderID,
		GraderName:             r.GraderName.String,
		GraderWeightPercentage: r.GraderWeightPercentage,
		TotalScore:             r.TotalScore,
		MaxPossibleScore:       r.MaxPossibleScore,
		Feedback:               r.Feedback.String,
		Notes:                  r.Notes.String,
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
	if err := r.SubItemScores.Unmarshal(&ge.SubItemScores); err != nil {
		return evaluation.GraderEvaluation{}, errors.Wrap(err, "decoding sub-item scores")
	}
	return ge, nil
}

const graderEvaluationColumns = `id, offering_id, trainee_id, component_id, grader_id, grader_name, grader_weight_percentage,
	sub_item_scores, total_score, max_possible_score, feedback, notes, created_at, updated_at`

func (repo *EvaluationRepository) UpsertGraderEvaluation(ctx context.Context, ge evaluation.GraderEvaluation) (evaluation.GraderEvaluation, error) {
	ge.ID = newID()
	row, err := toGraderEvaluationRow(ge)
	if err != nil {
		return evaluation.GraderEvaluation{}, err
	}

	q, args, err := repo.db.BindNamed(`
		INSERT INTO grader_evaluations (`+graderEvaluationColumns+`)
		VALUES (:id, :offering_id, :trainee_id, :component_id, :grader_id, :grader_name, :grader_weight_percentage,
			:sub_item_scores, :total_score, :max_possible_score, :feedback, :notes, :created_at, :updated_at)
		ON CONFLICT (offering_id, trainee_id, component_id, grader_id) DO UPDATE
		SET grader_name = EXCLUDED.grader_name, grader_weight_percentage = EXCLUDED.grader_weight_percentage,
			sub_item_scores = EXCLUDED.sub_item_scores, total_score = EXCLUDED.total_score,
			max_possible_score = EXCLUDED.max_possible_score, feedback = EXCLUDED.feedback,
			notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`, row)
	if err != nil {
		return evaluation.GraderEvaluation{}, errors.Wrap(err, "binding grader evaluation")
	}
	if err = repo.db.QueryRowxContext(ctx, q, args...).Scan(&ge.ID, &ge.CreatedAt); err != nil {
		return evaluation.GraderEvaluation{}, trapNotFound(err, evaluation.ErrComponentNotFound, "upserting grader evaluation")
	}
	ge.CreatedAt = ge.CreatedAt.UTC()
	return ge, nil
}

func (repo *EvaluationRepository) QueryGraderEvaluations(ctx context.Context, filter evaluation.EvaluationFilter) ([]evaluation.GraderEvaluation, error) {
	var w where
	if filter.OfferingID != "" {
		w.add("offering_id = ?", filter.OfferingID)
	}
	if filter.TraineeID != "" {
		w.add("trainee_id = ?", filter.TraineeID)
	}
	if filter.ComponentID != "" {
		w.add("component_id = ?", filter.ComponentID)
	}
	if filter.GraderID != "" {
		w.add("grader_id = ?", filter.GraderID)
	}

	var rows []graderEvaluationRow
	q := `SELECT ` + graderEvaluationColumns + ` FROM grader_evaluations` + w.String() + ` ORDER BY trainee_id, component_id, grader_id`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		if pqErrCode(err) == codeInvalidText {
			return []evaluation.GraderEvaluation{}, nil
		}
		return nil, errors.Wrap(err, "selecting grader evaluations")
	}

	evals := make([]evaluation.GraderEvaluation, 0, len(rows))
	for _, r := range rows {
		ge, err := r.toGraderEvaluation()
		if err != nil {
			return nil, err
		}
		evals = append(evals, ge)
	}
	return evals, nil
}

func (repo *EvaluationRepository) DeleteGraderEvaluation(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM grader_evaluations WHERE id = $1`, id)
	return checkAffected(res, err, evaluation.ErrEvaluationNotFound, "deleting grader evaluation")
}

type externalScoreRow struct {
	ID          string             `db:"id"`
	OfferingID  string             `db:"offering_id"`
	TraineeID   string             `db:"trainee_id"`
	ComponentID string             `db:"component_id"`
	Score       float64            `db:"score"`
	Source      null.String        `db:"source"`
	Breakdown   types.NullJSONText `db:"breakdown"`
	RecordedAt  time.Time          `db:"recorded_at"`
}

func (repo *EvaluationRepository) UpsertExternalScore(ctx context.Context, es evaluation.ExternalScore) (evaluation.ExternalScore, error) {
	es.ID = newID()
	row := externalScoreRow{
		ID:          es.ID,
		OfferingID:  es.OfferingID,
		TraineeID:   es.TraineeID,
		ComponentID: es.ComponentID,
		Score:       es.Score,
		Source:      null.NewString(es.Source, es.Source != ""),
		RecordedAt:  es.RecordedAt.UTC(),
	}
	if es.Breakdown != nil {
		b, err := marshalJSON(es.Breakdown)
		if err != nil {
			return evaluation.ExternalScore{}, errors.Wrap(err, "encoding score breakdown")
		}
		row.Breakdown = types.NullJSONText{JSONText: b, Valid: true}
	}

	q, args, err := repo.db.BindNamed(`
		INSERT INTO external_scores (id, offering_id, trainee_id, component_id, score, source, breakdown, recorded_at)
		VALUES (:id, :offering_id, :trainee_id, :component_id, :score, :source, :breakdown, :recorded_at)
		ON CONFLICT (offering_id, trainee_id, component_id) DO UPDATE
		SET score = EXCLUDED.score, source = EXCLUDED.source, breakdown = EXCLUDED.breakdown, recorded_at = EXCLUDED.recorded_at
		RETURNING id`, row)
	if err != nil {
		return evaluation.ExternalScore{}, errors.Wrap(err, "binding external score")
	}
	if err = repo.db.QueryRowxContext(ctx, q, args...).Scan(&es.ID); err != nil {
		return evaluation.ExternalScore{}, trapNotFound(err, evaluation.ErrComponentNotFound, "upserting external score")
	}
	return es, nil
}

func (repo *EvaluationRepository) GetExternalScore(ctx context.Context, offeringID, traineeID, componentID string) (evaluation.ExternalScore, error) {
	var row externalScoreRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, offering_id, trainee_id, component_id, score, source, breakdown, recorded_at
		FROM external_scores
		WHERE offering_id = $1 AND trainee_id = $2 AND component_id = $3`,
		offeringID, traineeID, componentID)
	if err != nil {
		return evaluation.ExternalScore{}, trapNotFound(err, evaluation.ErrScoreNotFound, "selecting external score")
	}

	es := evaluation.ExternalScore{
		ID:          row.ID,
		OfferingID:  row.OfferingID,
		TraineeID:   row.TraineeID,
		ComponentID: row.ComponentID,
		Score:       row.Score,
		Source:      row.Source.String,
		RecordedAt:  row.RecordedAt.UTC(),
	}
	if row.Breakdown.Valid {
		if err = row.Breakdown.Unmarshal(&es.Breakdown); err != nil {
			return evaluation.ExternalScore{}, errors.Wrap(err, "decoding score breakdown")
		}
	}
	return es, nil
}
