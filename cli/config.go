package cli

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"tinychat/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(config.ToUserConfig(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "settings: %s\n", config.GetSettingsFilePath())
			printf(out, "config:   %s\n", config.GetUserConfigPath(cfg.DataDir()))
			printf(out, "data:     %s\n", cfg.DataDir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting in config.toml",
		Long:  "Change a setting in config.toml. Keys:\n  " + strings.Join(config.SettingKeys, "\n  "),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			value := strings.Join(args[1:], " ")
			if err := config.UpdateUserSetting(cfg.DataDir(), args[0], value); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-data-dir <dir>",
		Short: "Move where conversations and config.toml are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.UpdateDataDirectory(args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Data directory set to %s\n", args[0])
			return nil
		},
	})

	return cmd
}
