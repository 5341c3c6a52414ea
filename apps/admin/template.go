package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/gradebook/core/evaluation"
)

func (cli *commandLine) importTemplate(ctx context.Context, file string, activate bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(err, "reading template document")
	}
	var doc evaluation.NewTemplate
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "decoding template document")
	}

	tmpl, err := cli.svc.CreateTemplate(ctx, doc)
	if err != nil {
		return err
	}
	if activate {
		if tmpl, err = cli.svc.ActivateTemplate(ctx, tmpl.ID); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "template %s created: %q v%d (active: %t)\n", tmpl.ID, tmpl.Name, tmpl.Version, tmpl.IsActive)
	return nil
}

func (cli *commandLine) exportTemplate(ctx context.Context, id string) error {
	out, err := cli.templateDocument(ctx, id)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cli.out, out)
	return err
}

func (cli *commandLine) diffTemplates(ctx context.Context, fromID, toID string) error {
	from, err := cli.templateDocument(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := cli.templateDocument(ctx, toID)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fromID,
		ToFile:   toID,
		Context:  3,
	})
	if err != nil {
		return errors.Wrap(err, "diffing templates")
	}
	if diff == "" {
		fmt.Fprintln(cli.out, "templates are identical")
		return nil
	}
	_, err = io.WriteString(cli.out, diff)
	return err
}

// templateDocument renders a template in the import-template YAML format.
func (cli *commandLine) templateDocument(ctx context.Context, id string) (string, error) {
	tmpl, err := cli.svc.GetTemplate(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(toDocument(tmpl))
	if err != nil {
		return "", errors.Wrap(err, "encoding template document")
	}
	return string(data), nil
}

func toDocument(tmpl evaluation.Template) evaluation.NewTemplate {
	doc := evaluation.NewTemplate{
		CourseTemplateID:  tmpl.CourseTemplateID,
		Name:              tmpl.Name,
		Description:       tmpl.Description,
		PassingTotalScore: tmpl.PassingTotalScore,
		CreatedBy:         tmpl.CreatedBy,
		Components:        make([]evaluation.NewComponent, 0, len(tmpl.Components)),
	}
	for _, c := range tmpl.Components {
		order, active := c.OrderIndex, c.IsActive
		nc := evaluation.NewComponent{
			Name:             c.Name,
			Code:             c.Code,
			Description:      c.Description,
			WeightPercentage: c.WeightPercentage,
			EvaluationType:   c.EvaluationType,
			Graders:          c.Graders,
			OrderIndex:       &order,
			IsActive:         &active,
			IsRequired:       c.IsRequired,
			SubItems:         make([]evaluation.NewSubItem, 0, len(c.SubItems)),
		}
		for _, si := range c.SubItems {
			siOrder := si.OrderIndex
			nc.SubItems = append(nc.SubItems, evaluation.NewSubItem{
				Name:        si.Name,
				Code:        si.Code,
				Description: si.Description,
				MaxScore:    si.MaxScore,
				OrderIndex:  &siOrder,
			})
		}
		doc.Components = append(doc.Components, nc)
	}
	return doc
}
