package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core/evaluation"
)

type gradeRow struct {
	ID                string         `db:"id"`
	OfferingID        string         `db:"offering_id"`
	TraineeID         string         `db:"trainee_id"`
	TemplateID        string         `db:"template_id"`
	TemplateVersion   int            `db:"template_version"`
	TotalScore        float64        `db:"total_score"`
	PassingScore      float64        `db:"passing_score"`
	IsPassed          bool           `db:"is_passed"`
	Rank              int            `db:"rank"`
	TotalTrainees     int            `db:"total_trainees"`
	RankStale         bool           `db:"rank_stale"`
	ComponentScores   types.JSONText `db:"component_scores"`
	CalculationMethod string         `db:"calculation_method"`
	OverrideReason    null.String    `db:"override_reason"`
	CalculatedAt      time.Time      `db:"calculated_at"`
	RankedAt          null.Time      `db:"ranked_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func toGradeRow(g evaluation.ComprehensiveGrade) (gradeRow, error) {
	scores, err := marshalJSON(g.ComponentScores)
	if err != nil {
		return gradeRow{}, errors.Wrap(err, "encoding component scores")
	}
	return gradeRow{
		ID:                g.ID,
		OfferingID:        g.OfferingID,
		TraineeID:         g.TraineeID,
		TemplateID:        g.TemplateID,
		TemplateVersion:   g.TemplateVersion,
		TotalScore:        g.TotalScore,
		PassingScore:      g.PassingScore,
		IsPassed:          g.IsPassed,
		Rank:              g.Rank,
		TotalTrainees:     g.TotalTrainees,
		RankStale:         g.RankStale,
		ComponentScores:   scores,
		CalculationMethod: string(g.CalculationMethod),
		OverrideReason:    null.NewString(g.OverrideReason, g.OverrideReason != ""),
		CalculatedAt:      g.CalculatedAt.UTC(),
		RankedAt:          null.TimeFromPtr(g.RankedAt),
		CreatedAt:         g.CreatedAt.UTC(),
		UpdatedAt:         g.UpdatedAt.UTC(),
	}, nil
}

func (r gradeRow) toGrade() (evaluation.ComprehensiveGrade, error) {
	g := evaluation.ComprehensiveGrade{
		ID:                r.ID,
		OfferingID:        r.OfferingID,
		TraineeID:         r.TraineeID,
		TemplateID:        r.TemplateID,
		TemplateVersion:   r.TemplateVersion,
		TotalScore:        r.TotalScore,
		PassingScore:      r.PassingScore,
		IsPassed:          r.IsPassed,
		Rank:              r.Rank,
		TotalTrainees:     r.TotalTrainees,
		RankStale:         r.RankStale,
		CalculationMethod: evaluation.CalculationMethod(r.CalculationMethod),
		OverrideReason:    r.OverrideReason.String,
		CalculatedAt:      r.CalculatedAt.UTC(),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.RankedAt.Valid {
		ts := r.RankedAt.Time.UTC()
		g.RankedAt = &ts
	}
	if err := r.ComponentScores.Unmarshal(&g.ComponentScores); err != nil {
		return evaluation.ComprehensiveGrade{}, errors.Wrap(err, "decoding component scores")
	}
	return g, nil
}

const (
	gradeColumns = `id, offering_id, trainee_id, template_id, template_version, total_score, passing_score, is_passed,
	rank, total_trainees, rank_stale, component_scores, calculation_method, override_reason, calculated_at, ranked_at,
	created_at, updated_at`

	insertGradeQuery = `INSERT INTO comprehensive_grades (` + gradeColumns + `)
		VALUES (:id, :offering_id, :trainee_id, :template_id, :template_version, :total_score, :passing_score, :is_passed,
			:rank, :total_trainees, :rank_stale, :component_scores, :calculation_method, :override_reason, :calculated_at,
			:ranked_at, :created_at, :updated_at)`

	updateGradeQuery = `UPDATE comprehensive_grades
		SET template_version = :template_version, total_score = :total_score, passing_score = :passing_score,
			is_passed = :is_passed, rank_stale = :rank_stale, component_scores = :component_scores,
			calculation_method = :calculation_method, override_reason = :override_reason,
			calculated_at = :calculated_at, updated_at = :updated_at
		WHERE id = :id`

	insertHistoryQuery = `INSERT INTO grade_history
		(id, grade_id, previous_score, new_score, previous_passed, new_passed, reason, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

func (repo *EvaluationRepository) GetGrade(ctx context.Context, key evaluation.GradeKey) (evaluation.ComprehensiveGrade, error) {
	var row gradeRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+gradeColumns+` FROM comprehensive_grades WHERE offering_id = $1 AND trainee_id = $2 AND template_id = $3`,
		key.OfferingID, key.TraineeID, key.TemplateID)
	if err != nil {
		return evaluation.ComprehensiveGrade{}, trapNotFound(err, evaluation.ErrGradeNotFound, "selecting grade")
	}
	return row.toGrade()
}

func (repo *EvaluationRepository) QueryGrades(ctx context.Context, offeringID, templateID string) ([]evaluation.ComprehensiveGrade, error) {
	var rows []gradeRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+gradeColumns+` FROM comprehensive_grades WHERE offering_id = $1 AND template_id = $2 ORDER BY trainee_id`,
		offeringID, templateID)
	if err != nil {
		if pqErrCode(err) == codeInvalidText {
			return []evaluation.ComprehensiveGrade{}, nil
		}
		return nil, errors.Wrap(err, "selecting grades")
	}

	grades := make([]evaluation.ComprehensiveGrade, 0, len(rows))
	for _, r := range rows {
		g, err := r.toGrade()
		if err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, nil
}

// UpsertGrade locks the stored grade row, if any, for the whole compare-and-swap.
// Two concurrent first inserts of the same key conflict on the unique key: the loser gets ErrStaleGrade.
func (repo *EvaluationRepository) UpsertGrade(ctx context.Context, grade evaluation.ComprehensiveGrade, change evaluation.GradeChange) (evaluation.ComprehensiveGrade, error) {
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		var orig gradeRow
		err := tx.GetContext(ctx, &orig,
			`SELECT `+gradeColumns+` FROM comprehensive_grades
			WHERE offering_id = $1 AND trainee_id = $2 AND template_id = $3
			FOR UPDATE`,
			grade.OfferingID, grade.TraineeID, grade.TemplateID)

		var prevScore *float64
		var prevPassed *bool
		record := true
		switch {
		case err == nil:
			if orig.CalculatedAt.After(grade.CalculatedAt) {
				return evaluation.ErrStaleGrade
			}
			grade.ID = orig.ID
			grade.CreatedAt = orig.CreatedAt.UTC()
			grade.Rank = orig.Rank
			grade.TotalTrainees = orig.TotalTrainees
			grade.RankStale = orig.RankStale || orig.TotalScore != grade.TotalScore
			if orig.RankedAt.Valid {
				ts := orig.RankedAt.Time.UTC()
				grade.RankedAt = &ts
			}
			prevScore, prevPassed = &orig.TotalScore, &orig.IsPassed
			record = orig.TotalScore != grade.TotalScore || orig.IsPassed != grade.IsPassed

			row, err := toGradeRow(grade)
			if err != nil {
				return err
			}
			if _, err = tx.NamedExecContext(ctx, updateGradeQuery, row); err != nil {
				return errors.Wrap(err, "updating grade")
			}
		case errors.Cause(err) == sql.ErrNoRows:
			grade.ID = newID()
			grade.Rank, grade.TotalTrainees, grade.RankedAt = 0, 0, nil
			grade.RankStale = true

			row, err := toGradeRow(grade)
			if err != nil {
				return err
			}
			if _, err = tx.NamedExecContext(ctx, insertGradeQuery, row); err != nil {
				if pqErrCode(err) == codeUniqueViolation {
					return evaluation.ErrStaleGrade
				}
				return errors.Wrap(err, "inserting grade")
			}
		default:
			return trapNotFound(err, evaluation.ErrTemplateNotFound, "locking grade")
		}

		if !record {
			return nil
		}
		_, err = tx.ExecContext(ctx, insertHistoryQuery,
			newID(), grade.ID, null.Float64FromPtr(prevScore), grade.TotalScore, null.BoolFromPtr(prevPassed),
			grade.IsPassed, change.Reason, change.ChangedBy, grade.CalculatedAt.UTC())
		return errors.Wrap(err, "inserting grade history")
	})
	if err != nil {
		return evaluation.ComprehensiveGrade{}, err
	}
	return grade, nil
}

// ApplyRanks locks every grade row of the offering, checks they are the ones ranked, then updates them in one statement.
func (repo *EvaluationRepository) ApplyRanks(ctx context.Context, offeringID, templateID string, ranks []evaluation.RankUpdate, rankedAt time.Time) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		var current []struct {
			ID           string    `db:"id"`
			TotalScore   float64   `db:"total_score"`
			CalculatedAt time.Time `db:"calculated_at"`
		}
		err := tx.SelectContext(ctx, &current, `
			SELECT id, total_score, calculated_at FROM comprehensive_grades
			WHERE offering_id = $1 AND template_id = $2
			FOR UPDATE`, offeringID, templateID)
		if err != nil {
			return trapNotFound(err, evaluation.ErrTemplateNotFound, "locking grades")
		}
		if len(current) != len(ranks) {
			return evaluation.ErrStaleRanking
		}

		expected := make(map[string]evaluation.RankUpdate, len(ranks))
		for _, r := range ranks {
			expected[r.GradeID] = r
		}
		for _, c := range current {
			r, ok := expected[c.ID]
			if !ok || r.TotalScore != c.TotalScore || !r.CalculatedAt.Equal(c.CalculatedAt) {
				return evaluation.ErrStaleRanking
			}
		}
		if len(ranks) == 0 {
			return nil
		}

		ids := make([]string, 0, len(ranks))
		positions := make([]int64, 0, len(ranks))
		for _, r := range ranks {
			ids = append(ids, r.GradeID)
			positions = append(positions, int64(r.Rank))
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE comprehensive_grades AS g
			SET rank = r.rank, total_trainees = $3, rank_stale = FALSE, ranked_at = $4
			FROM unnest($1::uuid[], $2::int[]) AS r (id, rank)
			WHERE g.id = r.id`,
			pq.Array(ids), pq.Array(positions), len(ranks), rankedAt.UTC())
		return errors.Wrap(err, "updating ranks")
	})
}

func (repo *EvaluationRepository) QueryGradeHistory(ctx context.Context, gradeID string) ([]evaluation.GradeHistory, error) {
	var rows []struct {
		ID             string       `db:"id"`
		GradeID        string       `db:"grade_id"`
		PreviousScore  null.Float64 `db:"previous_score"`
		NewScore       float64      `db:"new_score"`
		PreviousPassed null.Bool    `db:"previous_passed"`
		NewPassed      bool         `db:"new_passed"`
		Reason         string       `db:"reason"`
		ChangedBy      string       `db:"changed_by"`
		ChangedAt      time.Time    `db:"changed_at"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, grade_id, previous_score, new_score, previous_passed, new_passed, reason, changed_by, changed_at
		FROM grade_history WHERE grade_id = $1 ORDER BY changed_at, id`, gradeID)
	if err != nil {
		if pqErrCode(err) == codeInvalidText {
			return []evaluation.GradeHistory{}, nil
		}
		return nil, errors.Wrap(err, "selecting grade history")
	}

	hist := make([]evaluation.GradeHistory, 0, len(rows))
	for _, r := range rows {
		hist = append(hist, evaluation.GradeHistory{
			ID:             r.ID,
			GradeID:        r.GradeID,
			PreviousScore:  r.PreviousScore.Ptr(),
			NewScore:       r.NewScore,
			PreviousPassed: r.PreviousPassed.Ptr(),
			NewPassed:      r.NewPassed,
			Reason:         r.Reason,
			ChangedBy:      r.ChangedBy,
			ChangedAt:      r.ChangedAt.UTC(),
		})
	}
	return hist, nil
}
