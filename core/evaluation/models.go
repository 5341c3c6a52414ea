package evaluation

import (
	"sort"
	"time"
)

type EvaluationType string

// Evaluation types
const (
	TypeInstructorManual EvaluationType = "instructor_manual"
	TypeExamAuto         EvaluationType = "exam_auto"
	TypeActivityAuto     EvaluationType = "activity_auto"
	TypePeerReview       EvaluationType = "peer_review"
	TypeSelfAssessment   EvaluationType = "self_assessment"
)

var EvaluationTypes = []EvaluationType{
	TypeInstructorManual,
	TypeExamAuto,
	TypeActivityAuto,
	TypePeerReview,
	TypeSelfAssessment,
}

func (t EvaluationType) IsValid() bool {
	for _, et := range EvaluationTypes {
		if t == et {
			return true
		}
	}
	return false
}

// IsManual reports whether graders score the component directly.
func (t EvaluationType) IsManual() bool { return t == TypeInstructorManual }

type CalculationMethod string

const (
	MethodAuto   CalculationMethod = "auto"
	MethodManual CalculationMethod = "manual"
)

type Template struct {
	ID                string      `json:"id"`
	CourseTemplateID  string      `json:"course_template_id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	PassingTotalScore float64     `json:"passing_total_score"`
	IsActive          bool        `json:"is_active"`
	Version           int         `json:"version"`
	ParentID          string      `json:"parent_id,omitempty"`
	CreatedBy         string      `json:"created_by,omitempty"`
	CreatedAt         time.Time   `json:"created_at"` // UTC
	UpdatedAt         time.Time   `json:"updated_at"` // UTC
	Components        []Component `json:"components"`
}

// ActiveComponents returns the active components ordered by OrderIndex.
func (t Template) ActiveComponents() []Component {
	comps := make([]Component, 0, len(t.Components))
	for _, c := range t.Components {
		if c.IsActive {
			comps = append(comps, c)
		}
	}
	SortComponents(comps)
	return comps
}

func (t Template) ActiveWeightSum() float64 {
	var sum float64
	for _, c := range t.Components {
		if c.IsActive {
			sum += c.WeightPercentage
		}
	}
	return sum
}

func (t Template) Component(id string) (Component, bool) {
	for _, c := range t.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// GraderWeight is one configured grader of a component and its share among co-graders.
type GraderWeight struct {
	GraderID string  `json:"grader_id" yaml:"grader_id" validate:"required"`
	Name     string  `json:"name,omitempty" yaml:"name,omitempty"`
	Weight   float64 `json:"weight" yaml:"weight" validate:"finite,gte=0,lte=100"`
}

type Component struct {
	ID               string         `json:"id"`
	TemplateID       string         `json:"template_id"`
	Name             string         `json:"name"`
	Code             string         `json:"code"`
	Description      string         `json:"description"`
	WeightPercentage float64        `json:"weight_percentage"`
	EvaluationType   EvaluationType `json:"evaluation_type"`
	Graders          []GraderWeight `json:"graders"`
	OrderIndex       int            `json:"order_index"`
	IsActive         bool           `json:"is_active"`
	IsRequired       bool           `json:"is_required"`
	CreatedAt        time.Time      `json:"created_at"` // UTC
	UpdatedAt        time.Time      `json:"updated_at"` // UTC
	SubItems         []SubItem      `json:"sub_items"`
}

func (c Component) SubItem(id string) (SubItem, bool) {
	for _, si := range c.SubItems {
		if si.ID == id {
			return si, true
		}
	}
	return SubItem{}, false
}

// Grader returns the configured weight of `graderID`.
func (c Component) Grader(graderID string) (GraderWeight, bool) {
	for _, g := range c.Graders {
		if g.GraderID == graderID {
			return g, true
		}
	}
	return GraderWeight{}, false
}

type SubItem struct {
	ID          string    `json:"id"`
	ComponentID string    `json:"component_id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	MaxScore    float64   `json:"max_score"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func SortComponents(comps []Component) {
	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].OrderIndex != comps[j].OrderIndex {
			return comps[i].OrderIndex < comps[j].OrderIndex
		}
		return comps[i].Code < comps[j].Code
	})
}

func SortSubItems(items []SubItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].OrderIndex != items[j].OrderIndex {
			return items[i].OrderIndex < items[j].OrderIndex
		}
		return items[i].Code < items[j].Code
	})
}

type SubItemScore struct {
	SubItemID string  `json:"sub_item_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score"`
}

// GraderEvaluation is one grader's scores for one trainee on one component of an offering.
type GraderEvaluation struct {
	ID                     string         `json:"id"`
	OfferingID             string         `json:"offering_id"`
	TraineeID              string         `json:"trainee_id"`
	ComponentID            string         `json:"component_id"`
	GraderID               string         `json:"grader_id"`
	GraderName             string         `json:"grader_name"`
	GraderWeightPercentage float64        `json:"grader_weight_percentage"`
	SubItemScores          []SubItemScore `json:"sub_item_scores"`
	TotalScore             float64        `json:"total_score"`
	MaxPossibleScore       float64        `json:"max_possible_score"`
	Feedback               string         `json:"feedback,omitempty"`
	Notes                  string         `json:"notes,omitempty"`
	CreatedAt              time.Time      `json:"created_at"` // UTC
	UpdatedAt              time.Time      `json:"updated_at"` // UTC
}

// Normalized returns the evaluation's score on a 0-100 scale.
func (ge GraderEvaluation) Normalized() float64 {
	return NormalizeScore(ge.TotalScore, ge.MaxPossibleScore)
}

// ExternalScore is a normalized component score produced outside of the engine
// (exam scoring, activity aggregation, peer or self review).
type ExternalScore struct {
	ID          string                 `json:"id"`
	OfferingID  string                 `json:"offering_id"`
	TraineeID   string                 `json:"trainee_id"`
	ComponentID string                 `json:"component_id"`
	Score       float64                `json:"score"`
	Source      string                 `json:"source,omitempty"`
	Breakdown   map[string]interface{} `json:"breakdown,omitempty"`
	RecordedAt  time.Time              `json:"recorded_at"` // UTC
}

// GradeKey identifies a ComprehensiveGrade.
type GradeKey struct {
	OfferingID string `json:"offering_id"`
	TraineeID  string `json:"trainee_id"`
	TemplateID string `json:"template_id"`
}

func (k GradeKey) String() string {
	return k.OfferingID + "/" + k.TraineeID + "/" + k.TemplateID
}

type GraderBreakdown struct {
	GraderID         string         `json:"grader_id"`
	GraderName       string         `json:"grader_name"`
	Weight           float64        `json:"weight"`
	TotalScore       float64        `json:"total_score"`
	MaxPossibleScore float64        `json:"max_possible_score"`
	NormalizedScore  float64        `json:"normalized_score"`
	SubItemScores    []SubItemScore `json:"sub_item_scores"`
}

type ScoreBreakdown struct {
	Graders []GraderBreakdown      `json:"graders,omitempty"`
	Source  map[string]interface{} `json:"source,omitempty"`
	Note    string                 `json:"note,omitempty"`
}

type ComponentScore struct {
	ComponentID    string         `json:"component_id"`
	Name           string         `json:"name"`
	Code           string         `json:"code"`
	EvaluationType EvaluationType `json:"evaluation_type"`
	Weight         float64        `json:"weight"`
	RawScore       float64        `json:"raw_score"`
	WeightedScore  float64        `json:"weighted_score"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
}

type ComprehensiveGrade struct {
	ID                string            `json:"id"`
	OfferingID        string            `json:"offering_id"`
	TraineeID         string            `json:"trainee_id"`
	TemplateID        string            `json:"template_id"`
	TemplateVersion   int               `json:"template_version"`
	TotalScore        float64           `json:"total_score"`
	PassingScore      float64           `json:"passing_score"`
	IsPassed          bool              `json:"is_passed"`
	Rank              int               `json:"rank"`
	TotalTrainees     int               `json:"total_trainees"`
	RankStale         bool              `json:"rank_stale"` // the total changed since the last ranking pass
	ComponentScores   []ComponentScore  `json:"component_scores"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
	OverrideReason    string            `json:"override_reason,omitempty"`
	CalculatedAt      time.Time         `json:"calculated_at"` // UTC
	RankedAt          *time.Time        `json:"ranked_at"`     // UTC
	CreatedAt         time.Time         `json:"created_at"`    // UTC
	UpdatedAt         time.Time         `json:"updated_at"`    // UTC
}

func (g ComprehensiveGrade) Key() GradeKey {
	return GradeKey{OfferingID: g.OfferingID, TraineeID: g.TraineeID, TemplateID: g.TemplateID}
}

// GradeChange describes why a grade is written. It is recorded in the grade history.
type GradeChange struct {
	Reason    string
	ChangedBy string
}

type GradeHistory struct {
	ID             string    `json:"id"`
	GradeID        string    `json:"grade_id"`
	PreviousScore  *float64  `json:"previous_score"`
	NewScore       float64   `json:"new_score"`
	PreviousPassed *bool     `json:"previous_passed"`
	NewPassed      bool      `json:"new_passed"`
	Reason         string    `json:"reason"`
	ChangedBy      string    `json:"changed_by"`
	ChangedAt      time.Time `json:"changed_at"` // UTC
}

// RankUpdate assigns a rank to the grade identified by GradeID.
// TotalScore and CalculatedAt are the values the rank was computed from.
type RankUpdate struct {
	GradeID       string
	TraineeID     string
	TotalScore    float64
	CalculatedAt  time.Time
	Rank          int
	TotalTrainees int
}

type TraineeSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
}

type GradeWithTrainee struct {
	ComprehensiveGrade
	Trainee *TraineeSummary `json:"trainee"`
}

type Statistics struct {
	TotalTrainees int     `json:"total_trainees"`
	Evaluated     int     `json:"evaluated"`
	Pending       int     `json:"pending"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	Average       float64 `json:"average"`
	Highest       float64 `json:"highest"`
	Lowest        float64 `json:"lowest"`
	RanksStale    bool    `json:"ranks_stale"`
}

// Submission is the outcome of SubmitAndRecalculate. The evaluation is always saved;
// Grade is nil and RecalcErr set when the grade could not be refreshed.
type Submission struct {
	Evaluation GraderEvaluation    `json:"evaluation"`
	Grade      *ComprehensiveGrade `json:"grade"`
	RecalcErr  error               `json:"-"`
}
