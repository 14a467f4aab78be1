package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"regeval/internal/variant"
)

func newVariantsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "variants",
		Short:       "List the known evaluation variants",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(variant.Tags()))
			for _, plan := range variant.All() {
				shared := plan.SharedFrom
				if shared == "" {
					shared = "-"
				}
				rows = append(rows, []string{
					plan.Tag,
					yesNo(plan.AltCTEverywhere),
					yesNo(plan.AltCTForSegmentation),
					yesNo(plan.ExtendedOrgans),
					yesNo(plan.CropColon),
					shared,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{
					leftCol("Variant"),
					leftCol("Gen CT (all)"),
					leftCol("Gen CT (seg)"),
					leftCol("Ext organs"),
					leftCol("Crop colon"),
					leftCol("Shares from"),
				},
				rows,
			))
			return nil
		},
	}
}
