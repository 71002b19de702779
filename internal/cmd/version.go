package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runVersion,
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	out := cmd.OutOrStdout()

	if versionJSON {
		return printJSON(out, info)
	}

	if versionVerbose {
		fmt.Fprintln(out, titleStyle.Render("wayfinder"))
		fmt.Fprintln(out, info.String())
		return nil
	}

	fmt.Fprintf(out, "wayfinder %s\n", info.Short())
	return nil
}
