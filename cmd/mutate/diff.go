package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/signadot/go-mutate/jsondiff"
	"github.com/spf13/cobra"
)

func diffCmd() *cobra.Command {
	var (
		asMergePatch bool
		asPatches    bool
	)
	cmd := &cobra.Command{
		Use:   "diff <before-file> <after-file>",
		Short: "diff two document snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := loadValue(args[0])
			if err != nil {
				return err
			}
			after, err := loadValue(args[1])
			if err != nil {
				return err
			}
			if asMergePatch {
				patch, err := jsondiff.MergePatch(before, after)
				if err != nil {
					return err
				}
				fmt.Println(string(patch))
				return nil
			}
			entries := jsondiff.Entries(before, after)
			if asPatches {
				return writeValue("-", jsondiff.ToPatches(entries))
			}
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				color.NoColor = true
			}
			printEntries(entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asMergePatch, "merge-patch", false, "emit an RFC 7386 merge patch instead of entries")
	cmd.Flags().BoolVar(&asPatches, "patches", false, "emit the entries as a patch list in wire form")
	return cmd
}

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgYellow)
)

func printEntries(entries []jsondiff.Entry) {
	for _, e := range entries {
		switch e.Kind {
		case jsondiff.Added:
			addedColor.Printf("+ %s = %s\n", e.Path, compact(e.After))
		case jsondiff.Removed:
			removedColor.Printf("- %s (was %s)\n", e.Path, compact(e.Before))
		case jsondiff.Changed:
			changedColor.Printf("~ %s: %s -> %s\n", e.Path, compact(e.Before), compact(e.After))
		}
	}
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
