package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
)

var (
	graphFields = map[string]bool{"roots": true, "nodes": true}
	nodeFields  = map[string]bool{
		"alias": true, "type": true, "source": true, "inputs": true,
		"columns": true, "filter": true, "on": true, "kind": true,
		"mode": true, "rules": true,
	}
)

// CompileDir loads the CUE package in dir and builds the definition it
// declares against sources.
func CompileDir(dir string, sources graph.Sources) (*graph.Definition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("definition directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	return Compile(ctx.BuildInstance(inst), sources)
}

// CompileString compiles CUE source text. filename is used in positions.
func CompileString(src, filename string, sources graph.Sources) (*graph.Definition, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename(filename)), sources)
}

// Compile builds the definition declared by v:
//
//	federation: "sales"
//	graphs: orders: {
//		roots: ["joined"]
//		nodes: {
//			sqlSource: {type: "source", source: "sqlSource"}
//			joined: {type: "join", inputs: ["sqlSource", "excelSource"], on: "..."}
//		}
//	}
//
// Node labels are aliases. Nodes may be declared in any order.
func Compile(v cue.Value, sources graph.Sources) (*graph.Definition, error) {
	doc, pos, err := decode(v)
	if err != nil {
		return nil, err
	}
	def, err := querystore.Build(doc, sources)
	if err != nil {
		return nil, pos.locate(err)
	}
	return def, nil
}

// Decode converts v to the persisted document model without building it.
func Decode(v cue.Value) (*querystore.Document, error) {
	doc, _, err := decode(v)
	return doc, err
}

// positions maps document paths and node aliases back to CUE source.
type positions struct {
	root    token.Pos
	paths   map[string]token.Pos
	aliases map[string]token.Pos
}

// locate attaches a CUE position to a document or graph error.
func (p positions) locate(err error) error {
	var de *querystore.DecodeError
	if errors.As(err, &de) {
		return &CompileError{Field: de.Path, Message: de.Error(), Pos: p.lookup(de.Path), Err: err}
	}
	var be *graph.BuildError
	if errors.As(err, &be) {
		pos, ok := p.aliases[be.Alias]
		if !ok {
			pos = p.root
		}
		return &CompileError{Field: string(be.Code), Message: be.Error(), Pos: pos, Err: err}
	}
	return err
}

// lookup returns the position of the longest recorded prefix of path.
func (p positions) lookup(path string) token.Pos {
	for i := len(path); i > 0; i-- {
		if pos, ok := p.paths[path[:i]]; ok {
			return pos
		}
	}
	return p.root
}

func decode(v cue.Value) (*querystore.Document, positions, error) {
	pos := positions{
		root:    v.Pos(),
		paths:   make(map[string]token.Pos),
		aliases: make(map[string]token.Pos),
	}
	if err := v.Err(); err != nil {
		return nil, pos, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, pos, formatCUEError(err)
	}

	doc := &querystore.Document{Version: querystore.Version}

	nameVal := v.LookupPath(cue.ParsePath("federation"))
	if !nameVal.Exists() {
		return nil, pos, &CompileError{Field: "federation", Message: "federation name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, pos, formatCUEError(err)
	}
	doc.Name = name

	graphsVal := v.LookupPath(cue.ParsePath("graphs"))
	if !graphsVal.Exists() {
		return nil, pos, &CompileError{Field: "graphs", Message: "at least one graph is required", Pos: v.Pos()}
	}
	iter, err := graphsVal.Fields()
	if err != nil {
		return nil, pos, formatCUEError(err)
	}
	for iter.Next() {
		path := fmt.Sprintf("graphs[%d]", len(doc.Graphs))
		pos.paths[path] = iter.Value().Pos()
		gd, err := decodeGraph(path, iter.Label(), iter.Value(), pos)
		if err != nil {
			return nil, pos, err
		}
		doc.Graphs = append(doc.Graphs, gd)
	}
	if len(doc.Graphs) == 0 {
		return nil, pos, &CompileError{Field: "graphs", Message: "at least one graph is required", Pos: graphsVal.Pos()}
	}
	return doc, pos, nil
}

func decodeGraph(path, name string, v cue.Value, pos positions) (querystore.GraphDocument, error) {
	gd := querystore.GraphDocument{Name: name}
	if err := checkFields(v, "graphs."+name, graphFields); err != nil {
		return gd, err
	}

	if roots := v.LookupPath(cue.ParsePath("roots")); roots.Exists() {
		if err := roots.Decode(&gd.Roots); err != nil {
			return gd, formatCUEError(err)
		}
	}

	nodes := v.LookupPath(cue.ParsePath("nodes"))
	if !nodes.Exists() {
		return gd, &CompileError{Field: "graphs." + name + ".nodes", Message: "nodes are required", Pos: v.Pos()}
	}
	iter, err := nodes.Fields()
	if err != nil {
		return gd, formatCUEError(err)
	}
	for iter.Next() {
		alias, nv := iter.Label(), iter.Value()
		field := fmt.Sprintf("graphs.%s.nodes.%s", name, alias)
		if err := checkFields(nv, field, nodeFields); err != nil {
			return gd, err
		}

		var nd querystore.NodeDocument
		if err := nv.Decode(&nd); err != nil {
			return gd, formatCUEError(err)
		}
		if nd.Alias != "" && nd.Alias != alias {
			return gd, &CompileError{
				Field:   field + ".alias",
				Message: fmt.Sprintf("alias %q does not match label %q", nd.Alias, alias),
				Pos:     nv.Pos(),
			}
		}
		nd.Alias = alias

		pos.paths[fmt.Sprintf("%s.nodes[%d]", path, len(gd.Nodes))] = nv.Pos()
		pos.aliases[alias] = nv.Pos()
		gd.Nodes = append(gd.Nodes, nd)
	}
	return gd, nil
}

// checkFields rejects labels the document model does not know.
func checkFields(v cue.Value, field string, allowed map[string]bool) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if !allowed[iter.Label()] {
			return &CompileError{
				Field:   field + "." + iter.Label(),
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}
