package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion())
		},
	}
}

// buildVersion renders a one-line version string from the embedded build
// info: module version, short VCS revision with a dirty marker, and the
// toolchain/platform the binary was built for.
func buildVersion() string {
	version := "dev"
	revision := ""

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		dirty := false
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
				if len(revision) > 12 {
					revision = revision[:12]
				}
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
		if dirty {
			revision += "-dirty"
		}
	}

	out := "basemount-retrieve " + version
	if revision != "" {
		out += " (" + revision + ")"
	}
	return fmt.Sprintf("%s %s %s/%s", out, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
