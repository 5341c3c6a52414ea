package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/gradebook/core/evaluation"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db  *sql.DB
	svc *evaluation.Service
	out io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose migration command (up, down, status...)")
	fmt.Fprintln(cli.out, "  import-template -file FILE [-activate]          - create a template from a YAML document")
	fmt.Fprintln(cli.out, "  export-template -id ID                          - print a template as a YAML document")
	fmt.Fprintln(cli.out, "  diff-template -from ID -to ID                   - show the changes between two templates")
	fmt.Fprintln(cli.out, "  rank -offering ID -template ID                  - rank the grades of an offering")
	fmt.Fprintln(cli.out, "  recalculate -offering ID -template ID           - recalculate every grade of an offering, then rank it")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	importCmd := flag.NewFlagSet("import-template", flag.ExitOnError)
	importFile := importCmd.String("file", "", "The YAML template document.")
	importActivate := importCmd.Bool("activate", false, "Activate the template once created.")

	exportCmd := flag.NewFlagSet("export-template", flag.ExitOnError)
	exportID := exportCmd.String("id", "", "The template ID.")

	diffCmd := flag.NewFlagSet("diff-template", flag.ExitOnError)
	diffFrom := diffCmd.String("from", "", "The ID of the original template.")
	diffTo := diffCmd.String("to", "", "The ID of the changed template.")

	rankCmd := flag.NewFlagSet("rank", flag.ExitOnError)
	rankOffering := rankCmd.String("offering", "", "The course offering ID.")
	rankTemplate := rankCmd.String("template", "", "The template ID.")

	recalcCmd := flag.NewFlagSet("recalculate", flag.ExitOnError)
	recalcOffering := recalcCmd.String("offering", "", "The course offering ID.")
	recalcTemplate := recalcCmd.String("template", "", "The template ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "import-template":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importTemplate(ctx, *importFile, *importActivate)
	case "export-template":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportID == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportTemplate(ctx, *exportID)
	case "diff-template":
		if err := diffCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *diffFrom == "" || *diffTo == "" {
			diffCmd.Usage()
			return errHelp
		}
		return cli.diffTemplates(ctx, *diffFrom, *diffTo)
	case "rank":
		if err := rankCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rankOffering == "" || *rankTemplate == "" {
			rankCmd.Usage()
			return errHelp
		}
		return cli.rank(ctx, *rankOffering, *rankTemplate)
	case "recalculate":
		if err := recalcCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recalcOffering == "" || *recalcTemplate == "" {
			recalcCmd.Usage()
			return errHelp
		}
		return cli.recalculate(ctx, *recalcOffering, *recalcTemplate)
	default:
		cli.printUsage()
		return errHelp
	}
}
