package info

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/fretlab/internal/buildinfo"
	"github.com/tphakala/fretlab/internal/cpuspec"
)

// Command creates the info command printing build and CPU details.
func Command(build buildinfo.BuildInfo) *cobra.Command {
	var features bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print build and CPU information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cpu := cpuspec.GetCPUSpec()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Version:     %s\n", build.GetVersion())
			fmt.Fprintf(out, "Build date:  %s\n", build.GetBuildDate())
			fmt.Fprintf(out, "Go:          %s %s/%s\n", runtime.Version(), runtime.GOOS, cpu.Arch)
			fmt.Fprintf(out, "CPU:         %s (%s)\n", cpu.BrandName, cpu.Vendor)
			fmt.Fprintf(out, "Cores:       %d physical, %d logical\n", cpu.PhysicalCores, cpu.LogicalCores)
			fmt.Fprintf(out, "Vector unit: %s\n", cpu.Vector)
			if features {
				fmt.Fprintf(out, "Features:    %s\n", strings.Join(cpu.Features, " "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&features, "features", false, "List every CPU feature flag")
	return cmd
}
