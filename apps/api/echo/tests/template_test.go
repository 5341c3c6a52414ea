package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/evaluation"
	"github.com/trezcool/gradebook/tests"
)

func Test_templateApi_create(t *testing.T) {
	server, _ := setup(t)

	valid := testutil.PracticalTheoryTemplate()
	noName := testutil.PracticalTheoryTemplate()
	noName.Name = ""
	overweight := testutil.PracticalTheoryTemplate()
	overweight.Components[1].WeightPercentage = 40

	tests := []httpTest{
		{
			name: "missing name", method: http.MethodPost, path: "/v1/templates", body: marchallObj(t, noName),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "weights above 100", method: http.MethodPost, path: "/v1/templates", body: marchallObj(t, overweight),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"weight_percentage": "active component weights sum to 110, which exceeds 100"}),
		},
		{name: "valid", method: http.MethodPost, path: "/v1/templates", body: marchallObj(t, valid), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newActorRequest(tt.method, tt.path, "coordinator", tt.body)
			server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if rec.Code == http.StatusCreated {
				var tmpl evaluation.Template
				unmarshall(t, rec, &tmpl)
				assert.Equal(t, 1, tmpl.Version)
				assert.False(t, tmpl.IsActive)
				assert.Equal(t, "admin", tmpl.CreatedBy)
				require.Len(t, tmpl.Components, 2)
				assert.Equal(t, "practical_evaluation", tmpl.Components[0].Code)
				assert.Equal(t, "theory_evaluation", tmpl.Components[1].Code)
			}
		})
	}
}

func Test_templateApi_lifecycle(t *testing.T) {
	server, svc := setup(t)
	tmpl := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), false)
	practical := tmpl.Components[0]
	path := "/v1/templates/" + tmpl.ID

	rec := do(server, http.MethodGet, "/v1/templates/unknown")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "evaluation template not found"}),
	}, rec)

	// activate
	rec = do(server, http.MethodPost, path+"/activate")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got evaluation.Template
	unmarshall(t, rec, &got)
	assert.True(t, got.IsActive)

	// an active template keeps its weights at 100
	rec = do(server, http.MethodPut, "/v1/components/"+practical.ID, marchallObj(t, map[string]interface{}{"weight_percentage": 60}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// rebalancing both weights at once is allowed
	weights := evaluation.SetWeights{Weights: []evaluation.ComponentWeight{
		{ComponentID: practical.ID, WeightPercentage: 60},
		{ComponentID: tmpl.Components[1].ID, WeightPercentage: 40},
	}}
	rec = do(server, http.MethodPut, path+"/weights", marchallObj(t, weights))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &got)
	assert.Equal(t, 60.0, got.Components[0].WeightPercentage)
	assert.Equal(t, 40.0, got.Components[1].WeightPercentage)

	// grading locks the template
	testutil.Submit(t, svc, testutil.TraineeA, "grader-1", got.Components[0], 10, 8)
	_, err := svc.CalculateComprehensiveGrade(context.Background(), testutil.OfferingID, testutil.TraineeA, tmpl.ID)
	require.NoError(t, err)
	rec = do(server, http.MethodPost, "/v1/components/"+practical.ID+"/sub-items", marchallObj(t, evaluation.NewSubItem{Name: "Speed", MaxScore: 5}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = do(server, http.MethodDelete, path)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// header edits stay allowed
	rec = do(server, http.MethodPut, path, marchallObj(t, map[string]interface{}{"name": "Welding final (2024)"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &got)
	assert.Equal(t, "Welding final (2024)", got.Name)

	// new version
	req, rec := newActorRequest(http.MethodPost, path+"/versions", "coordinator")
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var version evaluation.Template
	unmarshall(t, rec, &version)
	assert.Equal(t, 2, version.Version)
	assert.Equal(t, tmpl.ID, version.ParentID)
	assert.Equal(t, "coordinator", version.CreatedBy)
	assert.False(t, version.IsActive)
	assert.Len(t, version.Components, 2)

	// the copy is editable
	rec = do(server, http.MethodPost, "/v1/components/"+version.Components[0].ID+"/sub-items", marchallObj(t, evaluation.NewSubItem{Name: "Speed", MaxScore: 5}))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// query
	rec = do(server, http.MethodGet, "/v1/templates?course_template_id=course-welding-101&is_active=false")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []evaluation.Template
	unmarshall(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, version.ID, list[0].ID)

	rec = do(server, http.MethodGet, "/v1/templates?is_active=lol")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"is_active": "is_active must be a boolean"}),
	}, rec)
}
