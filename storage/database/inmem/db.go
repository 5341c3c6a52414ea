package inmemdb

import (
	"sync"

	"github.com/trezcool/gradebook/core/evaluation"
)

// DB keeps every table behind a single lock so that cascades and ranking passes are atomic.
type DB struct {
	mutex sync.RWMutex

	templates   map[string]*evaluation.Template // header only
	components  map[string]*evaluation.Component
	subItems    map[string]*evaluation.SubItem
	evaluations map[string]*evaluation.GraderEvaluation
	scores      map[string]*evaluation.ExternalScore
	grades      map[string]*evaluation.ComprehensiveGrade
	history     []evaluation.GradeHistory
}

func Open() *DB {
	return &DB{
		templates:   make(map[string]*evaluation.Template),
		components:  make(map[string]*evaluation.Component),
		subItems:    make(map[string]*evaluation.SubItem),
		evaluations: make(map[string]*evaluation.GraderEvaluation),
		scores:      make(map[string]*evaluation.ExternalScore),
		grades:      make(map[string]*evaluation.ComprehensiveGrade),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	fresh := Open()
	db.templates = fresh.templates
	db.components = fresh.components
	db.subItems = fresh.subItems
	db.evaluations = fresh.evaluations
	db.scores = fresh.scores
	db.grades = fresh.grades
	db.history = nil
}
