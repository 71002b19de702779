package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect wayfinder configuration",
	Long: `Manage wayfinder configuration.

Settings are read from, in increasing precedence: built-in defaults,
./wayfinder.yaml or ~/.wayfinder/config.yaml (or --config), and
WAYFINDER_* environment variables such as WAYFINDER_TASKS_BACKEND.

Examples:
  # Write the defaults to ~/.wayfinder/config.yaml
  wayfinder config init

  # Show the effective configuration
  wayfinder config show

  # Edit configuration in $EDITOR
  wayfinder config edit
`,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a config file with the default settings",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show the configuration file path",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:         "edit",
	Short:       "Edit configuration in $EDITOR",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigEdit,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd, configEditCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultFile()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); err == nil && !configForce {
		return ConfigExistsError(path)
	}
	if err := config.Default().WriteFile(path, configForce); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Wrote "+path))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	if shown.Client.APIKey != "" {
		shown.Client.APIKey = "********"
	}
	data, err := shown.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), configPath())
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Default().WriteFile(path, false); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	editorCmd := exec.CommandContext(cmd.Context(), editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	if _, err := config.Load(path); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("Warning: the edited configuration does not load"))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Configuration updated successfully"))
	return nil
}
