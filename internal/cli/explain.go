package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
)

// ExplainResult describes a stored definition, or the part of one graph
// a root depends on.
type ExplainResult struct {
	Definition string         `json:"definition"`
	Root       string         `json:"root,omitempty"`
	Graphs     []ExplainGraph `json:"graphs"`
}

// ExplainGraph lists a graph's nodes in evaluation order.
type ExplainGraph struct {
	Name  string        `json:"name"`
	Roots []string      `json:"roots"`
	Nodes []ExplainNode `json:"nodes"`
}

// ExplainNode is one node with its output schema.
type ExplainNode struct {
	Alias   string   `json:"alias"`
	Type    string   `json:"type"`
	Inputs  []string `json:"inputs,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Columns []string `json:"columns"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <definition> [root]",
		Short: "Show the graphs, nodes and schemas of a stored definition",
		Long: `Show a stored definition's graphs with every node's inputs, operation
and output schema.

With a root, only the graph that root belongs to is shown, limited to
the nodes the root depends on. A graph name selects that graph's first
root.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := openCommandApp(rootOpts, cmd)
			if err != nil {
				return failWith(formatter, err)
			}
			defer a.Close()

			def, err := a.Catalog.Definition(cmd.Context(), args[0])
			if err != nil {
				return failWith(formatter, err)
			}
			root := ""
			if len(args) == 2 {
				root = args[1]
			}
			result, err := explain(def, root)
			if err != nil {
				return failWith(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(result)
			}
			writeExplain(formatter, result)
			return nil
		},
	}
}

func explain(def *graph.Definition, root string) (*ExplainResult, error) {
	doc, err := querystore.Encode(def)
	if err != nil {
		return nil, err
	}
	result := &ExplainResult{Definition: def.Name}

	var keep map[string]bool
	graphName := ""
	if root != "" {
		g, alias, ok := def.Resolve(root)
		if !ok {
			return nil, &engine.RuntimeError{
				Code:    engine.ErrCodeUnknownAlias,
				Alias:   root,
				Message: fmt.Sprintf("no graph in %q has root %q", def.Name, root),
			}
		}
		result.Root = alias
		graphName = g.Name()
		keep = upstream(g, alias)
	}

	for _, gd := range doc.Graphs {
		if graphName != "" && gd.Name != graphName {
			continue
		}
		g := def.Graphs[gd.Name]
		eg := ExplainGraph{Name: gd.Name, Roots: gd.Roots, Nodes: []ExplainNode{}}
		for _, nd := range gd.Nodes {
			if keep != nil && !keep[nd.Alias] {
				continue
			}
			node, _ := g.Node(nd.Alias)
			en := ExplainNode{Alias: nd.Alias, Type: nd.Type, Inputs: nd.Inputs, Detail: detail(nd)}
			for _, c := range node.Schema().Columns {
				en.Columns = append(en.Columns, c.String())
			}
			eg.Nodes = append(eg.Nodes, en)
		}
		result.Graphs = append(result.Graphs, eg)
	}
	return result, nil
}

// upstream returns alias and every node it transitively reads from.
func upstream(g *graph.Graph, alias string) map[string]bool {
	seen := map[string]bool{}
	stack := []string{alias}
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[a] {
			continue
		}
		seen[a] = true
		if n, ok := g.Node(a); ok {
			stack = append(stack, n.Inputs()...)
		}
	}
	return seen
}

func detail(nd querystore.NodeDocument) string {
	switch nd.Type {
	case querystore.TypeSource:
		return "source " + nd.Source
	case querystore.TypeSelect:
		cols := make([]string, len(nd.Columns))
		for i, c := range nd.Columns {
			cols[i] = c.Expr
			if c.As != "" {
				cols[i] += " as " + c.As
			}
		}
		s := "select " + strings.Join(cols, ", ")
		if nd.Filter != "" {
			s += " where " + nd.Filter
		}
		return s
	case querystore.TypeJoin:
		return nd.Kind + " join on " + nd.On
	case querystore.TypeUnion:
		return nd.Mode
	case querystore.TypeTransformation:
		rules := make([]string, len(nd.Rules))
		for i, r := range nd.Rules {
			op := "flatten"
			if r.Unfold {
				op = "unfold"
			}
			rules[i] = op + " " + r.Column
			if r.Alias != "" {
				rules[i] += " as " + r.Alias
			}
		}
		return strings.Join(rules, ", ")
	}
	return ""
}

func writeExplain(formatter *OutputFormatter, result *ExplainResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "Definition %s\n", result.Definition)
	for _, g := range result.Graphs {
		fmt.Fprintf(w, "\nGraph %s (roots: %s)\n", g.Name, strings.Join(g.Roots, ", "))
		for _, n := range g.Nodes {
			marker := " "
			if slices.Contains(g.Roots, n.Alias) {
				marker = "*"
			}
			fmt.Fprintf(w, "%s %s [%s]", marker, n.Alias, n.Type)
			if len(n.Inputs) > 0 {
				fmt.Fprintf(w, " <- %s", strings.Join(n.Inputs, ", "))
			}
			fmt.Fprintln(w)
			if n.Detail != "" {
				fmt.Fprintf(w, "    %s\n", n.Detail)
			}
			fmt.Fprintf(w, "    (%s)\n", strings.Join(n.Columns, ", "))
		}
	}
}
