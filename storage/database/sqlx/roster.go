package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core/evaluation"
)

const statusWithdrawn = "withdrawn"

// Roster reads enrollments from the enrollments table.
type Roster struct {
	db *sqlx.DB
}

var _ evaluation.Roster = (*Roster)(nil) // interface compliance check

func NewRoster(db *sqlx.DB) *Roster {
	return &Roster{db: db}
}

type enrollmentRow struct {
	OfferingID string      `db:"offering_id"`
	TraineeID  string      `db:"trainee_id"`
	Name       string      `db:"name"`
	Email      null.String `db:"email"`
	Status     string      `db:"status"`
}

// Enroll adds or refreshes trainees of an offering.
func (r *Roster) Enroll(ctx context.Context, offeringID string, trainees ...evaluation.TraineeSummary) error {
	for _, ts := range trainees {
		status := ts.Status
		if status == "" {
			status = "enrolled"
		}
		row := enrollmentRow{
			OfferingID: offeringID,
			TraineeID:  ts.ID,
			Name:       ts.Name,
			Email:      null.NewString(ts.Email, ts.Email != ""),
			Status:     status,
		}
		_, err := r.db.NamedExecContext(ctx, `
			INSERT INTO enrollments (offering_id, trainee_id, name, email, status)
			VALUES (:offering_id, :trainee_id, :name, :email, :status)
			ON CONFLICT (offering_id, trainee_id) DO UPDATE
			SET name = EXCLUDED.name, email = EXCLUDED.email, status = EXCLUDED.status`, row)
		if err != nil {
			return errors.Wrapf(err, "enrolling trainee %s", ts.ID)
		}
	}
	return nil
}

func (r *Roster) IsEnrolled(ctx context.Context, offeringID, traineeID string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE offering_id = $1 AND trainee_id = $2 AND status <> $3)`,
		offeringID, traineeID, statusWithdrawn)
	return ok, errors.Wrap(err, "checking enrollment")
}

func (r *Roster) Trainees(ctx context.Context, offeringID string) ([]evaluation.TraineeSummary, error) {
	var rows []enrollmentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT offering_id, trainee_id, name, email, status FROM enrollments
		WHERE offering_id = $1 AND status <> $2
		ORDER BY trainee_id`, offeringID, statusWithdrawn)
	if err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}

	trainees := make([]evaluation.TraineeSummary, 0, len(rows))
	for _, row := range rows {
		trainees = append(trainees, evaluation.TraineeSummary{
			ID:     row.TraineeID,
			Name:   row.Name,
			Email:  row.Email.String,
			Status: row.Status,
		})
	}
	return trainees, nil
}
