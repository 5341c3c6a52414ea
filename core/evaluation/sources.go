package evaluation

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/gradebook/core"
)

// ExternalScoreSource reads the scores recorded through RecordExternalScore.
type ExternalScoreSource struct {
	repo Repository
}

func NewExternalScoreSource(repo Repository) *ExternalScoreSource {
	return &ExternalScoreSource{repo: repo}
}

func (src *ExternalScoreSource) ComponentScore(ctx context.Context, key GradeKey, comp Component) (ExternalScore, bool, error) {
	es, err := src.repo.GetExternalScore(ctx, key.OfferingID, key.TraineeID, comp.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return ExternalScore{}, false, nil
		}
		return ExternalScore{}, false, err
	}
	return es, true, nil
}

// collectInputs reads the current scoring rows of every active component of `tmpl` for one trainee.
// Non-manual components are resolved concurrently through their ScoreSource.
func (svc *Service) collectInputs(ctx context.Context, key GradeKey, tmpl Template) (map[string]ComponentInput, error) {
	comps := tmpl.ActiveComponents()
	inputs := make(map[string]ComponentInput, len(comps))

	evals, err := svc.repo.QueryGraderEvaluations(ctx, EvaluationFilter{OfferingID: key.OfferingID, TraineeID: key.TraineeID})
	if err != nil {
		return nil, errors.Wrap(err, "querying grader evaluations")
	}
	for _, ge := range evals {
		in := inputs[ge.ComponentID]
		in.Evaluations = append(in.Evaluations, ge)
		inputs[ge.ComponentID] = in
	}

	external := make([]*ExternalScore, len(comps))
	g, gctx := errgroup.WithContext(ctx)
	for i, comp := range comps {
		if comp.EvaluationType.IsManual() {
			continue
		}
		src, ok := svc.sources[comp.EvaluationType]
		if !ok {
			continue
		}
		i, comp := i, comp
		g.Go(func() error {
			es, found, err := src.ComponentScore(gctx, key, comp)
			if err != nil {
				return errors.Wrapf(err, "resolving %s score of component %s", comp.EvaluationType, comp.Code)
			}
			if found {
				external[i] = &es
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	for i, comp := range comps {
		if comp.EvaluationType.IsManual() {
			continue
		}
		if external[i] == nil {
			svc.log.Warn("no score recorded for component", comp.Code, key)
			continue
		}
		if !core.IsFinite(external[i].Score) {
			svc.log.Warn("non-finite score ignored", comp.Code, key, external[i].Source)
		}
		in := inputs[comp.ID]
		in.External = external[i]
		inputs[comp.ID] = in
	}
	return inputs, nil
}
