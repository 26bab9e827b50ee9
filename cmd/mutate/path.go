package main

import (
	"fmt"

	"github.com/signadot/go-mutate/jsonpath"
	"github.com/spf13/cobra"
)

func pathCmd() *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "path <expr>",
		Short: "parse a path expression and show its canonical form",
		Long: `Path parses a path expression, prints the canonical form and the
segment breakdown, and with --document resolves it against a document and
prints the addressed values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := jsonpath.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Println(p.String())
			for i, seg := range p {
				fmt.Printf("  [%d] %s %s\n", i, segmentKind(seg), seg.String())
			}
			if docPath == "" {
				return nil
			}
			doc, err := loadValue(docPath)
			if err != nil {
				return err
			}
			targets := jsonpath.Resolve(doc, p)
			if len(targets) == 0 {
				fmt.Println("no targets")
				return nil
			}
			for _, t := range targets {
				switch {
				case t.Kind == jsonpath.AttrTarget && !t.Exists:
					fmt.Printf("  %s (absent)\n", targetName(t))
				case t.Kind == jsonpath.IndexTarget && t.Width() != 1:
					arr := t.Parent.([]any)
					fmt.Printf("  %s = %s\n", targetName(t), compact(arr[t.Start:t.End]))
				default:
					fmt.Printf("  %s = %s\n", targetName(t), compact(t.Value))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&docPath, "document", "d", "", "resolve against this document (JSON or YAML)")
	return cmd
}

func segmentKind(seg jsonpath.Segment) string {
	switch {
	case seg.Field != nil:
		return "field"
	case seg.Index != nil:
		return "index"
	case seg.Range != nil:
		return "range"
	case seg.Key != nil:
		return "key"
	}
	return "?"
}

func targetName(t jsonpath.Target) string {
	if t.Kind == jsonpath.AttrTarget {
		return appendSegment(t.ParentPath, jsonpath.FieldSegment(t.Field)).String()
	}
	if t.End == t.Start+1 {
		return appendSegment(t.ParentPath, jsonpath.IndexSegment(t.Start)).String()
	}
	s, e := t.Start, t.End
	return appendSegment(t.ParentPath, jsonpath.RangeSegment(&s, &e)).String()
}

func appendSegment(p jsonpath.Path, seg jsonpath.Segment) jsonpath.Path {
	out := make(jsonpath.Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, seg)
}
