package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
)

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	key := evaluation.GradeKey{OfferingID: "offering-1", TraineeID: "trainee-a", TemplateID: "tmpl-1"}
	err := errors.New("boom")

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error", args: []interface{}{err}, want: []interface{}{"msg", err}},
		{
			name: "grade key",
			args: []interface{}{key, err},
			want: []interface{}{"msg", err, map[string]interface{}{
				"offering_id": "offering-1", "trainee_id": "trainee-a", "template_id": "tmpl-1",
			}},
		},
		{
			name: "positional values",
			args: []interface{}{"tmpl-1", 81.5},
			want: []interface{}{"msg", map[string]interface{}{"args": []interface{}{"tmpl-1", 81.5}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.prepare("msg", tt.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	l.Warn("grade calculation stale, retrying", evaluation.GradeKey{OfferingID: "o", TraineeID: "t", TemplateID: "x"}, 1)
	assert.Equal(t, "WARN grade calculation stale, retrying\n\to/t/x\n\t1\n", buf.String())
}
