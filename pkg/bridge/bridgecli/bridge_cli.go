package bridgecli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chaosweilder/wiibridge/internal/btsvc/linux"
	"github.com/chaosweilder/wiibridge/pkg/bridge"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "wiibridge"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

func NewRootCmd(configDir string) *cobra.Command {
	cfg := bridge.Config{
		DataDir:        filepath.Join(configDir, "data"),
		SettingsConfig: filepath.Join(configDir, "settings.yml"),
		MaxControllers: 4,
	}
	rootCmd := &cobra.Command{
		Use:   "wiibridge",
		Short: "Bluetooth controller bridge",
		Long:  `wiibridge re-exposes Bluetooth Wii remote controllers as a normalized input stream.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.SettingsConfig, "settings", cfg.SettingsConfig, "settings config file")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxControllers, "max-controllers", cfg.MaxControllers, "maximum simultaneous controllers")
	rootCmd.AddCommand(NewRun(&cfg))
	rootCmd.AddCommand(NewListDevices())
	rootCmd.AddCommand(NewListPlayers(&cfg))
	return rootCmd
}

func NewRun(cfg *bridge.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bridge.NewBridge(*cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			return b.Run(cmd.Context())
		},
	}
}

func NewListDevices() *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List HID devices visible to the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := linux.ListDevices()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}

func NewListPlayers(cfg *bridge.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list-players",
		Short: "List persisted player slot assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bridge.NewBridge(*cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			assignments, err := b.Players().StoredAssignments()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(assignments, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
