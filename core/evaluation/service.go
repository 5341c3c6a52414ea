package evaluation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

var (
	// not found
	ErrTemplateNotFound   = core.NewNotFoundError("evaluation template not found")
	ErrComponentNotFound  = core.NewNotFoundError("evaluation component not found")
	ErrSubItemNotFound    = core.NewNotFoundError("evaluation sub-item not found")
	ErrEvaluationNotFound = core.NewNotFoundError("grader evaluation not found")
	ErrScoreNotFound      = core.NewNotFoundError("external score not found")
	ErrGradeNotFound      = core.NewNotFoundError("comprehensive grade not found")
	ErrTraineeNotEnrolled = core.NewNotFoundError("trainee is not enrolled in this offering")

	// stale state
	ErrStaleGrade   = core.NewStaleStateError("a newer grade calculation was already saved")
	ErrStaleRanking = core.NewStaleStateError("grades changed while ranks were being computed")

	// validation causes
	ErrTemplateLocked   = errors.New("template is locked: it has been used for grading, create a new version instead")
	ErrInvalidWeights   = errors.New("invalid component weights")
	ErrInvalidGraders   = errors.New("invalid grader configuration")
	ErrIncompleteScores = errors.New("invalid or incomplete scores")
	ErrNotActivatable   = errors.New("template cannot be active")
	ErrTemplateInactive = errors.New("template is not active")
	ErrWrongScoreSource = errors.New("component is not scored this way")
)

const (
	defaultWeightTolerance = 0.01
	defaultScorePrecision  = 4
	defaultStaleRetries    = 3
	systemUser             = "system"
)

type Service struct {
	repo       Repository
	validator  *core.Validator
	log        core.Logger
	sources    map[EvaluationType]ScoreSource
	roster     Roster
	clock      func() time.Time
	tolerance  float64
	precision  int
	maxRetries int
}

type Option func(svc *Service)

// WithGradingConfig applies the weight tolerance and score precision of `conf`.
func WithGradingConfig(conf core.GradingConfig) Option {
	return func(svc *Service) {
		if conf.WeightTolerance > 0 {
			svc.tolerance = conf.WeightTolerance
		}
		if conf.ScorePrecision > 0 {
			svc.precision = conf.ScorePrecision
		}
	}
}

// WithScoreSource replaces the source of the scores of components of type `typ`.
func WithScoreSource(typ EvaluationType, src ScoreSource) Option {
	return func(svc *Service) { svc.sources[typ] = src }
}

// WithRoster enables enrollment checks and trainee summaries.
func WithRoster(roster Roster) Option {
	return func(svc *Service) { svc.roster = roster }
}

func WithClock(clock func() time.Time) Option {
	return func(svc *Service) { svc.clock = clock }
}

// WithStaleRetries sets how many times a calculation losing a concurrent write is retried.
func WithStaleRetries(n int) Option {
	return func(svc *Service) { svc.maxRetries = n }
}

func NewService(repo Repository, v *core.Validator, logger core.Logger, opts ...Option) *Service {
	RegisterValidators(v)
	svc := &Service{
		repo:       repo,
		validator:  v,
		log:        logger,
		sources:    make(map[EvaluationType]ScoreSource, len(EvaluationTypes)),
		clock:      time.Now,
		tolerance:  defaultWeightTolerance,
		precision:  defaultScorePrecision,
		maxRetries: defaultStaleRetries,
	}
	for _, typ := range EvaluationTypes {
		if !typ.IsManual() {
			svc.sources[typ] = NewExternalScoreSource(repo)
		}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// now returns the current UTC time at the precision kept by the stores.
func (svc *Service) now() time.Time {
	return svc.clock().UTC().Truncate(time.Microsecond)
}

// gradingTemplate returns the template of `templateID`; only active templates take scores and grades.
func (svc *Service) gradingTemplate(ctx context.Context, templateID string) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	if !tmpl.IsActive {
		return Template{}, core.NewValidationError(ErrTemplateInactive, core.FieldError{
			Field: "template_id",
			Error: "template must be activated before grading",
		})
	}
	return tmpl, nil
}

func (svc *Service) checkEnrollment(ctx context.Context, offeringID, traineeID string) error {
	if svc.roster == nil {
		return nil
	}
	enrolled, err := svc.roster.IsEnrolled(ctx, offeringID, traineeID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return ErrTraineeNotEnrolled
	}
	return nil
}
