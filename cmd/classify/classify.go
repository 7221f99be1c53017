// Package classify implements the command classifying one page from the shell.
package classify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/TrasparenzAI/rule-service/cmd/common"
	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/matcher"
)

const contentPreviewWidth = 60

type params struct {
	file     string
	url      string
	rule     string
	root     string
	children bool
}

// Command returns the classify command.
func Command() *cobra.Command {
	var p params
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a saved page against a rule",
		Long: `Classify a page saved on disk (raw or base64 HTML) against one rule,
or against every child of it with --children.

Examples:
  # Which link of the home page leads to the transparency section?
  rule-service classify -f home.html

  # Resolve every section of the transparency page
  rule-service classify -f trasparenza.html --children

  # Let the browser stage render the page
  rule-service classify -u https://www.comune.example.it/ -r bandi-concorso`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, p)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&p.file, "file", "f", "", `page file, "-" for stdin`)
	flags.StringVarP(&p.url, "url", "u", "", "page url, used by the browser stage")
	flags.StringVarP(&p.rule, "rule", "r", "", "rule name (default: the root rule)")
	flags.StringVar(&p.root, "root", "", "rule tree (default: rules.root)")
	flags.BoolVarP(&p.children, "children", "c", false, "classify every child of the rule")
	return cmd
}

func run(cmd *cobra.Command, p params) error {
	if p.file == "" && p.url == "" {
		return errors.New("one of --file or --url is required")
	}
	content, err := readPage(cmd.InOrStdin(), p.file)
	if err != nil {
		return err
	}

	app, err := common.NewApp(common.Options{Quiet: true, Console: true})
	if err != nil {
		return err
	}
	defer app.Close()

	req := matcher.Request{Content: content, URL: p.url, Root: p.root, Rule: p.rule}
	var outcomes []domain.Outcome
	if p.children {
		outcomes, err = app.Matcher.ExecuteChildren(cmd.Context(), req)
	} else {
		var o domain.Outcome
		if o, err = app.Matcher.Execute(cmd.Context(), req); err == nil {
			outcomes = []domain.Outcome{o}
		}
	}
	if err != nil {
		return err
	}

	render(cmd.OutOrStdout(), outcomes)
	return nil
}

func readPage(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch file {
	case "":
		return "", nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(data), nil
}

// render prints one row per result; tied candidates get one row each.
func render(w io.Writer, outcomes []domain.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Rule", "Status", "URL", "Term", "Where", "Score", "Content"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Status", Align: text.AlignRight},
		{Name: "Score", Align: text.AlignRight},
		{Name: "Content", WidthMax: contentPreviewWidth},
	})

	for _, o := range outcomes {
		switch v := o.(type) {
		case domain.Single:
			t.AppendRow(resultRow(v.Result, v.Code()))
		case domain.Tied:
			for _, r := range v.Results {
				t.AppendRow(resultRow(r, v.Code()))
			}
		case domain.NotFound:
			t.AppendRow(table.Row{v.Rule, v.Code(), "", v.Terms, "", "", ""})
		}
	}
	t.Render()
}

func resultRow(r domain.Result, status int) table.Row {
	return table.Row{
		r.Rule,
		status,
		r.URL,
		r.Term,
		r.Where,
		strconv.FormatFloat(r.Score, 'f', 3, 64),
		r.Content,
	}
}
