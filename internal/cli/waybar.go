package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jasper-companion/jasper/internal/ipc"
)

func init() {
	rootCmd.AddCommand(waybarCmd)
	rootCmd.AddCommand(waybarStatusCmd)
}

var waybarCmd = &cobra.Command{
	Use:   "waybar",
	Short: "Print the current insight as a waybar JSON line",
	Long: `One-shot frontend adapter for waybar's custom module protocol:
register as a frontend, heartbeat, fetch the latest insight and print a
single JSON object. Exits 0 in every case so the bar never breaks.`,
	RunE: runWaybar,
}

// waybarOutput is the custom-module JSON shape waybar polls for.
type waybarOutput struct {
	Text       string `json:"text"`
	Tooltip    string `json:"tooltip"`
	Class      string `json:"class"`
	Percentage int    `json:"percentage"`
}

// waybarTextLimit is where insight text gets ellipsized for the bar.
const waybarTextLimit = 50

func runWaybar(cmd *cobra.Command, args []string) error {
	client, err := ipc.Connect()
	if err != nil {
		printWaybar(waybarOutput{
			Text:    "⚠️ Jasper",
			Tooltip: "Error: Daemon not running",
			Class:   "jasper-error",
		})
		return nil
	}
	defer client.Close()

	// Registration happens-before heartbeat; adapters never unregister —
	// the heartbeat window handles liveness after exit.
	if ok, err := client.RegisterFrontend("waybar", os.Getpid()); err != nil || !ok {
		printWaybar(waybarOutput{
			Text:    "⚠️ Jasper",
			Tooltip: "Error: Registration failed",
			Class:   "jasper-error",
		})
		return nil
	}
	_, _ = client.Heartbeat("waybar")

	insight, err := client.GetLatestInsight()
	switch {
	case err != nil:
		printWaybar(waybarOutput{
			Text:    "⚠️ Jasper",
			Tooltip: "Error: Daemon error",
			Class:   "jasper-error",
		})
	case insight.ID == 0:
		printWaybar(waybarOutput{
			Text:    "🔍 Analyzing...",
			Tooltip: "Jasper is analyzing your context",
			Class:   "jasper-waiting",
		})
	default:
		printWaybar(waybarOutput{
			Text:       fmt.Sprintf("%s %s", insight.Emoji, truncate(insight.Text, waybarTextLimit)),
			Tooltip:    insight.Text,
			Class:      "jasper-insight",
			Percentage: 100,
		})
	}
	return nil
}

var waybarStatusCmd = &cobra.Command{
	Use:   "waybar-status",
	Short: "Print a human-readable daemon status for debugging waybar setups",
	RunE:  runWaybarStatus,
}

func runWaybarStatus(cmd *cobra.Command, args []string) error {
	client, err := ipc.Connect()
	if err != nil {
		fmt.Println("Daemon: Not Running")
		return nil
	}
	defer client.Close()

	status, err := client.GetStatus()
	if err != nil {
		fmt.Println("Daemon: Not Running")
		return nil
	}
	fmt.Println("Daemon: Running")
	fmt.Printf("Active Frontends: %d\n", status.ActiveFrontends)
	fmt.Printf("Insights Generated: %d\n", status.InsightsCount)
	return nil
}

func printWaybar(out waybarOutput) {
	encoded, err := json.Marshal(out)
	if err != nil {
		fmt.Println(`{"text":"⚠️ Jasper","class":"jasper-error"}`)
		return
	}
	fmt.Println(string(encoded))
}

// truncate ellipsizes text past the display limit, counting runes so
// multi-byte text never splits mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
