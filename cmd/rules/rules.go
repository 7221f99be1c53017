// Package rules implements the command printing the rule catalog.
package rules

import (
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/TrasparenzAI/rule-service/cmd/common"
	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/domain"
)

// Command returns the rules command.
func Command() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule trees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := common.NewApp(common.Options{Quiet: true, Console: true})
			if err != nil {
				return err
			}
			defer app.Close()

			roots := app.Catalog.Roots()
			if root != "" {
				roots = []string{root}
			}
			trees := make([]catalog.Node, 0, len(roots))
			for _, r := range roots {
				tree, treeErr := app.Catalog.Tree(r)
				if treeErr != nil {
					return treeErr
				}
				trees = append(trees, tree)
			}
			render(cmd.OutOrStdout(), trees)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "print only this tree")
	return cmd
}

func render(w io.Writer, trees []catalog.Node) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Rule", "Terms", "Codes"})
	for _, tree := range trees {
		appendNode(t, tree, 0)
		t.AppendSeparator()
	}
	t.Render()
}

func appendNode(t table.Writer, n catalog.Node, depth int) {
	keys := make([]string, len(n.Terms))
	codes := make([]string, 0, len(n.Terms))
	for i, term := range n.Terms {
		keys[i] = term.Key
		if term.Code != domain.DefaultTermCode {
			codes = append(codes, term.Key+"="+strconv.Itoa(term.Code))
		}
	}
	t.AppendRow(table.Row{strings.Repeat("  ", depth) + n.Name, strings.Join(keys, " | "), strings.Join(codes, ", ")})
	for _, child := range n.Children {
		appendNode(t, child, depth+1)
	}
}
