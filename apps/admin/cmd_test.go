package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/gradebook/core/evaluation"
	"github.com/trezcool/gradebook/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	svc, _ := testutil.NewService()
	var out bytes.Buffer
	return &commandLine{svc: svc, out: &out}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			case tt.wantOut != "":
				assert.Equal(t, tt.wantOut, out.String())
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_cohorts", "sql"}},
	})
}

const templateDoc = `
course_template_id: course-welding-101
name: Welding final evaluation
passing_total_score: 80
components:
  - name: 실기평가
    weight_percentage: 70
    evaluation_type: instructor_manual
    sub_items:
      - name: Bead quality
        max_score: 12
      - name: Safety
        max_score: 8
  - name: 이론평가
    weight_percentage: 30
    evaluation_type: instructor_manual
    sub_items:
      - name: Written test
        max_score: 10
`

func Test_commandLine_importTemplate(t *testing.T) {
	cli, out := setup(t)

	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(templateDoc), 0o600))
	overweight := filepath.Join(dir, "overweight.yaml")
	require.NoError(t, os.WriteFile(overweight, []byte(strings.Replace(templateDoc, "weight_percentage: 30", "weight_percentage: 40", 1)), 0o600))

	runCLITests(t, cli, out, []cliTest{
		{name: "no file", args: []string{"import-template"}, wantErr: errHelp},
		{name: "overweight", args: []string{"import-template", "-file", overweight}, wantErrStr: "invalid component weights"},
		{name: "valid", args: []string{"import-template", "-file", valid, "-activate"}},
	})

	templates, err := cli.svc.QueryTemplates(context.Background(), evaluation.TemplateFilter{CourseTemplateID: "course-welding-101"})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	tmpl := templates[0]
	assert.True(t, tmpl.IsActive)
	require.Len(t, tmpl.Components, 2)
	assert.Equal(t, "practical_evaluation", tmpl.Components[0].Code)
	assert.Len(t, tmpl.Components[0].SubItems, 2)
	assert.Contains(t, out.String(), "template "+tmpl.ID+" created")
}

func Test_commandLine_exportTemplate(t *testing.T) {
	cli, out := setup(t)
	tmpl := testutil.CreateTemplate(t, cli.svc, testutil.PracticalTheoryTemplate(), true)

	runCLITests(t, cli, out, []cliTest{
		{name: "no id", args: []string{"export-template"}, wantErr: errHelp},
		{name: "unknown template", args: []string{"export-template", "-id", "lol"}, wantErr: evaluation.ErrTemplateNotFound},
		{name: "export", args: []string{"export-template", "-id", tmpl.ID}},
	})

	var doc evaluation.NewTemplate
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, tmpl.Name, doc.Name)
	assert.Equal(t, 80.0, doc.PassingTotalScore)
	require.Len(t, doc.Components, 2)
	assert.Equal(t, "theory_evaluation", doc.Components[1].Code)
	assert.Equal(t, 30.0, doc.Components[1].WeightPercentage)
	assert.Equal(t, evaluation.TypeInstructorManual, doc.Components[1].EvaluationType)
	require.Len(t, doc.Components[0].SubItems, 2)
	assert.Equal(t, 12.0, doc.Components[0].SubItems[0].MaxScore)

	// an exported document imports back into an identical template
	imported, err := cli.svc.CreateTemplate(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, toDocument(tmpl).Components, toDocument(imported).Components)
}

func Test_commandLine_diffTemplates(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, cli.svc, testutil.PracticalTheoryTemplate(), false)
	version, err := cli.svc.NewTemplateVersion(ctx, tmpl.ID, "admin")
	require.NoError(t, err)

	runCLITests(t, cli, out, []cliTest{
		{name: "missing to", args: []string{"diff-template", "-from", tmpl.ID}, wantErr: errHelp},
		{name: "identical", args: []string{"diff-template", "-from", tmpl.ID, "-to", version.ID}, wantOut: "templates are identical\n"},
	})

	_, err = cli.svc.SetComponentWeights(ctx, version.ID, evaluation.SetWeights{Weights: []evaluation.ComponentWeight{
		{ComponentID: version.Components[0].ID, WeightPercentage: 60},
		{ComponentID: version.Components[1].ID, WeightPercentage: 40},
	}})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "diff-template", "-from", tmpl.ID, "-to", version.ID}))
	diff := out.String()
	assert.True(t, strings.HasPrefix(diff, "--- "+tmpl.ID+"\n+++ "+version.ID+"\n"), diff)

	var removed, added []string
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "-"):
			removed = append(removed, strings.TrimSpace(line[1:]))
		case strings.HasPrefix(line, "+"):
			added = append(added, strings.TrimSpace(line[1:]))
		}
	}
	assert.Equal(t, []string{"weight_percentage: 70", "weight_percentage: 30"}, removed)
	assert.Equal(t, []string{"weight_percentage: 60", "weight_percentage: 40"}, added)
}

func Test_commandLine_rank(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, cli.svc, testutil.PracticalTheoryTemplate(), true)
	practical := tmpl.Components[0]

	testutil.Submit(t, cli.svc, testutil.TraineeA, "grader-1", practical, 10, 8) // 63
	testutil.Submit(t, cli.svc, testutil.TraineeB, "grader-1", practical, 12, 8) // 70
	for _, trainee := range []string{testutil.TraineeA, testutil.TraineeB} {
		_, err := cli.svc.CalculateComprehensiveGrade(ctx, testutil.OfferingID, trainee, tmpl.ID)
		require.NoError(t, err)
	}

	ranking := "1/2\ttrainee-b\t70\tfailed\n2/2\ttrainee-a\t63\tfailed\n"
	runCLITests(t, cli, out, []cliTest{
		{name: "rank: no args", args: []string{"rank"}, wantErr: errHelp},
		{name: "rank: unknown template", args: []string{"rank", "-offering", testutil.OfferingID, "-template", "lol"}, wantErr: evaluation.ErrTemplateNotFound},
		{name: "rank", args: []string{"rank", "-offering", testutil.OfferingID, "-template", tmpl.ID}, wantOut: ranking},
		{name: "recalculate: no template", args: []string{"recalculate", "-offering", testutil.OfferingID}, wantErr: errHelp},
		{
			name: "recalculate", args: []string{"recalculate", "-offering", testutil.OfferingID, "-template", tmpl.ID},
			wantOut: "2 grades recalculated\n" + ranking,
		},
	})
}
