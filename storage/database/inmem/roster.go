package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/gradebook/core/evaluation"
)

// Roster keeps enrollments in memory.
type Roster struct {
	mutex     sync.RWMutex
	offerings map[string]map[string]evaluation.TraineeSummary
}

var _ evaluation.Roster = (*Roster)(nil) // interface compliance check

func NewRoster() *Roster {
	return &Roster{offerings: make(map[string]map[string]evaluation.TraineeSummary)}
}

func (r *Roster) Enroll(offeringID string, trainees ...evaluation.TraineeSummary) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	enrolled, ok := r.offerings[offeringID]
	if !ok {
		enrolled = make(map[string]evaluation.TraineeSummary)
		r.offerings[offeringID] = enrolled
	}
	for _, ts := range trainees {
		enrolled[ts.ID] = ts
	}
}

func (r *Roster) Withdraw(offeringID, traineeID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.offerings[offeringID], traineeID)
}

func (r *Roster) IsEnrolled(_ context.Context, offeringID, traineeID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.offerings[offeringID][traineeID]
	return ok, nil
}

func (r *Roster) Trainees(_ context.Context, offeringID string) ([]evaluation.TraineeSummary, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	trainees := make([]evaluation.TraineeSummary, 0, len(r.offerings[offeringID]))
	for _, ts := range r.offerings[offeringID] {
		trainees = append(trainees, ts)
	}
	sort.Slice(trainees, func(i, j int) bool { return trainees[i].ID < trainees[j].ID })
	return trainees, nil
}
