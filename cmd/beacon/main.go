package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/app"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Offline-first mesh chat for disaster response",
	Long: `Beacon keeps nearby devices talking when the infrastructure is gone.

Devices find each other over ad-hoc radio links, form a group around a
coordinator, and relay chat over a direct socket. Peers and history are
stored locally, so the app is useful even while alone.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(app.BuildVersionWithDate())
	},
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show this device's chat identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.ResolvePaths()
		if err != nil {
			return err
		}
		cfg, err := config.Load(paths.ConfigFile)
		if err != nil {
			return err
		}

		displayName := cfg.Identity.DisplayName
		if displayName == "" {
			displayName, _ = os.Hostname()
		}
		identity, err := domain.LoadOrCreateIdentity(paths.IdentityFile, displayName)
		if err != nil {
			return err
		}

		fmt.Printf("ID    : %s\n", identity.ID)
		fmt.Printf("Name  : %s\n", identity.Name)
		fmt.Printf("Stored: %s\n", paths.IdentityFile)

		return nil
	},
}

func init() {
	runCmd.Flags().Bool("simulate", false, "use the simulated transport with a fixture peer roster")
	rootCmd.AddCommand(runCmd, identityCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
