package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) rank(ctx context.Context, offeringID, templateID string) error {
	if err := cli.svc.RecalculateRanks(ctx, offeringID, templateID); err != nil {
		return err
	}
	return cli.printRanking(ctx, offeringID, templateID)
}

func (cli *commandLine) recalculate(ctx context.Context, offeringID, templateID string) error {
	n, err := cli.svc.RecalculateOffering(ctx, offeringID, templateID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d grades recalculated\n", n)
	return cli.printRanking(ctx, offeringID, templateID)
}

func (cli *commandLine) printRanking(ctx context.Context, offeringID, templateID string) error {
	grades, err := cli.svc.ListGrades(ctx, offeringID, templateID)
	if err != nil {
		return err
	}
	for _, g := range grades {
		verdict := "failed"
		if g.IsPassed {
			verdict = "passed"
		}
		fmt.Fprintf(cli.out, "%d/%d\t%s\t%g\t%s\n", g.Rank, g.TotalTrainees, g.TraineeID, g.TotalScore, verdict)
	}
	return nil
}
