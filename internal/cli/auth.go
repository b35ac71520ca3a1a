package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jasper-companion/jasper/internal/calsync"
	"github.com/jasper-companion/jasper/internal/config"
	"github.com/jasper-companion/jasper/internal/store"
)

func init() {
	rootCmd.AddCommand(authGoogleCmd)
	rootCmd.AddCommand(listCalendarsCmd)
	rootCmd.AddCommand(syncCmd)
}

var authGoogleCmd = &cobra.Command{
	Use:   "auth-google",
	Short: "Authenticate with Google Calendar",
	Long: `Starts the OAuth2 consent flow: prints the authorization URL to open
in a browser, then reads the authorization code from stdin, exchanges it
for tokens and runs an immediate calendar sync.`,
	RunE: runAuthGoogle,
}

func runAuthGoogle(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, err := calendarService(cfg)
	if err != nil {
		return err
	}

	authURL, state := service.AuthURL()
	fmt.Println("Open this URL in your browser and authorize Jasper:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Print("Paste the authorization code here: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code provided")
	}

	if err := service.AuthenticateWithCode(cmd.Context(), code, state); err != nil {
		return fmt.Errorf("authentication failed: %w\nRe-run 'jasper auth-google' to try again", err)
	}
	fmt.Println("Google Calendar authentication successful.")

	// Immediate sync so the first daemon iteration sees real events.
	db, err := store.Open(config.DataDir())
	if err != nil {
		return err
	}
	defer db.Close()

	syncer := calsync.NewSyncer(service, db, cfg.PlanningHorizon())
	if err := syncer.Sync(cmd.Context()); err != nil {
		fmt.Println("Authenticated, but the initial sync failed:", err)
		return nil
	}
	fmt.Println("Initial calendar sync complete.")
	return nil
}

var listCalendarsCmd = &cobra.Command{
	Use:   "list-calendars",
	Short: "List calendars available to the authenticated account",
	RunE:  runListCalendars,
}

func runListCalendars(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, err := calendarService(cfg)
	if err != nil {
		return err
	}
	if !service.IsAuthenticated() {
		fmt.Println("Not authenticated. Run 'jasper auth-google' first.")
		return nil
	}

	calendars, err := service.ListCalendars(cmd.Context())
	if err != nil {
		return err
	}
	if len(calendars) == 0 {
		fmt.Println("No calendars found.")
		return nil
	}
	for _, cal := range calendars {
		fmt.Printf("%s\t%s\n", cal[0], cal[1])
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one calendar sync pass now",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	service, err := calendarService(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(config.DataDir())
	if err != nil {
		return err
	}
	defer db.Close()

	syncer := calsync.NewSyncer(service, db, cfg.PlanningHorizon())
	if err := syncer.Sync(context.Background()); err != nil {
		return err
	}
	fmt.Println("Calendar sync complete.")
	return nil
}

func calendarService(cfg config.Config) (*calsync.Service, error) {
	gc := cfg.GoogleCalendar
	if gc.ClientID == "" || gc.ClientSecret == "" {
		return nil, fmt.Errorf("Google Calendar is not configured; set client_id and client_secret in %s", config.ConfigPath())
	}
	return calsync.NewService(calsync.Config{
		ClientID:     gc.ClientID,
		ClientSecret: gc.ClientSecret,
		RedirectURI:  gc.RedirectURI,
		CalendarIDs:  gc.CalendarIDs,
	}, config.DataDir()), nil
}
