package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/louiscrc/trakt-to-letterboxd/services/trakt"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize the Trakt account via device code",
	Long: `Starts the Trakt device-code OAuth flow: prints a code to enter at
the verification URL, polls until the account is authorized, and stores the
tokens in the settings file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgManager, settings, err := loadSettings()
		if err != nil {
			return err
		}

		if settings.Trakt.ClientID == "" || settings.Trakt.ClientSecret == "" {
			return fmt.Errorf("set trakt.clientId and trakt.clientSecret in %s first", cfgManager.Path())
		}

		client := trakt.NewClient(settings.Trakt.ClientID, settings.Trakt.ClientSecret)

		deviceCode, err := client.GetDeviceCode()
		if err != nil {
			return err
		}

		fmt.Printf("Go to %s and enter code: %s\n", deviceCode.VerificationURL, deviceCode.UserCode)
		fmt.Println("Waiting for authorization...")

		interval := time.Duration(deviceCode.Interval) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		deadline := time.Now().Add(time.Duration(deviceCode.ExpiresIn) * time.Second)

		for time.Now().Before(deadline) {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(interval):
			}

			token, err := client.PollForToken(deviceCode.DeviceCode)
			if err != nil {
				return err
			}
			if token == nil {
				continue // still pending
			}

			settings.Trakt.AccessToken = token.AccessToken
			settings.Trakt.RefreshToken = token.RefreshToken
			settings.Trakt.ExpiresAt = token.CreatedAt + int64(token.ExpiresIn)

			if profile, err := client.GetUserProfile(token.AccessToken); err == nil {
				settings.Trakt.Username = profile.Username
			}

			if err := cfgManager.Save(settings); err != nil {
				return fmt.Errorf("persist tokens: %w", err)
			}

			if settings.Trakt.Username != "" {
				fmt.Printf("Authorized as %s\n", settings.Trakt.Username)
			} else {
				fmt.Println("Authorized")
			}
			return nil
		}

		return fmt.Errorf("device code expired before authorization")
	},
}

func init() {
	RootCmd.AddCommand(authCmd)
}
