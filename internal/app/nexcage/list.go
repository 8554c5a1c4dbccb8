// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package nexcage

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers across every backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := buildOrchestrator()
		if err != nil {
			return err
		}
		infos, err := o.List(cmd.Context())
		if err != nil {
			return err
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintln(tw, "ID\tBACKEND\tVMID\tSTATUS\tIMAGE")
		for _, ci := range infos {
			vmid := "-"
			if ci.VMID != nil {
				vmid = fmt.Sprintf("%d", *ci.VMID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ci.ID, ci.Type, vmid, colorizeStatus(ci.Status), ci.Image)
		}
		return nil
	},
}

// colorizeStatus highlights running/stopped the way the teacher colors its
// verify command's trust-level prefixes, skipped entirely when stdout is
// not a terminal (fatih/color detects this itself).
func colorizeStatus(s sandbox.Status) string {
	switch s {
	case sandbox.StatusRunning:
		return color.New(color.FgGreen).Sprint(s)
	case sandbox.StatusStopped:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return string(s)
	}
}

func init() {
	listCmd.Flags().BoolVarP(&listJSON, "json", "j", false, "print structured json instead of a table")
}
