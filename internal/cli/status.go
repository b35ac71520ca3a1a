package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jasper-companion/jasper/internal/ipc"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := ipc.Connect()
	if err != nil {
		fmt.Println("Daemon Status: Not Running")
		return nil
	}
	defer client.Close()

	status, err := client.GetStatus()
	if err != nil {
		fmt.Println("Daemon Status: Not Running")
		return nil
	}

	state := "Stopped"
	if status.Running {
		state = "Running"
	}
	fmt.Printf("Daemon Status: %s\n", state)
	fmt.Printf("  Active frontends: %d\n", status.ActiveFrontends)
	fmt.Printf("  Total insights:   %d\n", status.InsightsCount)
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := ipc.Connect()
	if err != nil {
		fmt.Println("Daemon is not running.")
		return nil
	}
	defer client.Close()

	if ok, err := client.Stop(); err != nil || !ok {
		fmt.Println("Daemon is not running.")
		return nil
	}
	fmt.Println("Daemon stopping.")
	return nil
}
