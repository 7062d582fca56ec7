package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/memory-images/internal/transition"
)

func newTransitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions",
		Short: "List the available transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def := transition.DefaultSpec()
			var rows [][]string
			for i, k := range transition.All() {
				marker := ""
				if k == def.Single {
					marker = "default"
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), string(k), k.Label(), marker})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Name", "Label", ""},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))

			names := make([]string, 0, len(def.Multiple))
			for _, k := range def.Multiple {
				names = append(names, string(k))
			}
			fmt.Fprintf(out, "Default rotation for --mode multiple: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}
