package commands

import (
	"fmt"
	"strings"

	"github.com/gongahkia/batchqueue/internal/httpapi/middleware"
	"github.com/spf13/cobra"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Introspection API authentication commands",
	}

	cmd.AddCommand(newAuthTokenCmd())

	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var roles string

	cmd := &cobra.Command{
		Use:   "token [client-id]",
		Short: "Mint a bearer token for the HTTP/gRPC introspection surfaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("no JWT secret configured; set BATCHQUEUE_AUTH_JWT_SECRET")
			}

			auth := &middleware.AuthConfig{
				JWTSecret:     cfg.Auth.JWTSecret,
				JWTExpiration: cfg.Auth.JWTExpiration,
			}

			var roleList []string
			if roles != "" {
				roleList = strings.Split(roles, ",")
			}

			token, err := middleware.GenerateJWT(args[0], roleList, auth)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&roles, "roles", "r", "", "Comma-separated role list")
	return cmd
}
