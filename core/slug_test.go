package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Practical Skills", want: "practical_skills"},
		{name: "korean words", in: "실기평가", want: "practical_evaluation"},
		{name: "mixed", in: "BS 활동일지", want: "bs_activity_journal"},
		{name: "accents", in: "Évaluation théorique", want: "evaluation_theorique"},
		{name: "punctuation", in: "  Attitude (30%)!  ", want: "attitude_30"},
		{name: "repeated separators", in: "a  -  b__c", want: "a_b_c"},
		{name: "unknown script", in: "출석", want: ""},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugify_Deterministic(t *testing.T) {
	assert.Equal(t, Slugify("이론평가 점수"), Slugify("이론평가 점수"))
	assert.Equal(t, "theory_evaluation_score", Slugify("이론평가 점수"))
}

func TestUniqueSlug(t *testing.T) {
	taken := map[string]bool{"theory": true, "theory_2": true}
	isTaken := func(code string) bool { return taken[code] }

	assert.Equal(t, "theory_3", UniqueSlug("Theory", "component", isTaken))
	assert.Equal(t, "attitude", UniqueSlug("Attitude", "component", isTaken))
	assert.Equal(t, "item", UniqueSlug("출석", "item", isTaken))
}
