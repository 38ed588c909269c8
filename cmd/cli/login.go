package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
)

var (
	flagEmail    string
	flagPassword string
	flagSave     bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and print (or save) the bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPIClient()
		result, err := api.Login(cmd.Context(), flagEmail, flagPassword)
		if err != nil {
			return fmt.Errorf("%s", recoverapi.UserMessage(err))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Signed in as %s (%s)\n", titleStyle.Render(result.User.Name), result.User.Role)
		if !flagSave {
			fmt.Fprintf(out, "export RECOVEREASE_API_TOKEN=%s\n", result.Token)
			return nil
		}

		v := viper.GetViper()
		v.Set("api.token", result.Token)
		v.Set("identity.user_id", result.User.ID)
		v.Set("identity.name", result.User.Name)
		v.Set("identity.role", string(result.User.Role))
		path := v.ConfigFileUsed()
		if path == "" {
			path = "config.yml"
		}
		if err := v.WriteConfigAs(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logrus.WithField("path", path).Info("Saved credentials")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user the configured token belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPIClient()
		me, err := api.Me(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s", recoverapi.UserMessage(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s <%s>  %s\n", me.ID, titleStyle.Render(me.Name), me.Email, me.Role)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "account email")
	loginCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "account password")
	loginCmd.Flags().BoolVar(&flagSave, "save", false, "write token and identity to the config file")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(loginCmd, whoamiCmd)
}
