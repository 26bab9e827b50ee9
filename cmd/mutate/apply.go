package main

import (
	"fmt"

	mutate "github.com/signadot/go-mutate"
	"github.com/spf13/cobra"
)

func applyCmd() *cobra.Command {
	var (
		docsPath string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "apply <mutations-file>",
		Short: "apply a mutation list to a collection of documents",
		Long: `Apply reads an ordered list of mutations (JSON or YAML, in the wire
form) and applies it to a collection of documents keyed by _id. Mutations
addressing documents absent from the collection are skipped unless they
create them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var muts []*mutate.Mutation
			if err := loadInto(args[0], &muts); err != nil {
				return fmt.Errorf("read mutations: %w", err)
			}
			coll := mutate.Collection{}
			if docsPath != "" {
				raw, err := loadValue(docsPath)
				if err != nil {
					return fmt.Errorf("read documents: %w", err)
				}
				coll, err = collectionFrom(raw)
				if err != nil {
					return fmt.Errorf("read documents: %w", err)
				}
			}
			next, err := mutate.ApplyToCollection(coll, muts)
			if err != nil {
				return err
			}
			return writeValue(outPath, map[string]any(next))
		},
	}
	cmd.Flags().StringVarP(&docsPath, "documents", "d", "", "documents file (JSON or YAML); empty starts from an empty collection")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file; - for stdout")
	return cmd
}

// collectionFrom accepts either a mapping of id to document or a list of
// documents carrying _id.
func collectionFrom(raw any) (mutate.Collection, error) {
	switch v := raw.(type) {
	case map[string]any:
		return mutate.Collection(v), nil
	case []any:
		coll := make(mutate.Collection, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("document %d is not a mapping", i)
			}
			id, _ := doc[mutate.IDField].(string)
			if id == "" {
				return nil, fmt.Errorf("document %d has no _id", i)
			}
			coll[id] = doc
		}
		return coll, nil
	}
	return nil, fmt.Errorf("documents must be a mapping or a list, got %T", raw)
}
