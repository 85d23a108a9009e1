package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/app"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the mesh chat node",
	RunE: func(cmd *cobra.Command, args []string) error {
		simulate, _ := cmd.Flags().GetBool("simulate")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := app.Options{}
		if simulate {
			opts.ForceAdapter = config.AdapterSimulated
		}

		rt, err := app.Initialize(ctx, opts)
		if err != nil {
			slog.Error("initialize app runtime", "error", err)

			return err
		}

		var closeOnce sync.Once
		closeRuntime := func() {
			closeOnce.Do(func() {
				_ = rt.Close()
			})
		}
		defer closeRuntime()

		printBanner(rt, simulate)

		console := newConsole(rt, stop)
		console.Start(ctx)

		<-ctx.Done()
		fmt.Println("\nShutting down.")

		return nil
	},
}

func printBanner(rt *app.Runtime, simulate bool) {
	fmt.Printf("\n  Beacon %s\n\n", app.BuildVersionWithDate())
	fmt.Printf("  Identity : %s (%s)\n", rt.Identity.Name, rt.Identity.ID)
	transport := string(rt.Config.Network.Adapter)
	if simulate {
		transport = string(config.AdapterSimulated) + " (forced)"
	}
	fmt.Printf("  Transport: %s\n", transport)
	fmt.Printf("  Chat port: %d\n", rt.Config.Network.ChatPort)
	fmt.Printf("  Data     : %s\n", rt.Paths.RootDir)
	if rt.Diag != nil {
		fmt.Printf("  Diag     : http://%s\n", rt.Diag.Addr())
	}
	fmt.Printf("\n  Type a message and press enter to send.\n")
	fmt.Printf("  Commands: /peers /connect <id> /disconnect /history /help /quit\n\n")
}
