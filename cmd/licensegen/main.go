// licensegen mints and inspects AnswerVault license keys. It runs fully
// offline; the server only ever sees the public key.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaghiashraf/answervault/internal/license"
)

func main() {
	root := &cobra.Command{
		Use:           "licensegen",
		Short:         "Generate and inspect AnswerVault license keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(keygenCmd(), generateCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var bits int
	var outDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new RSA key pair for license signing",
		RunE: func(cmd *cobra.Command, args []string) error {
			privatePEM, publicPEM, err := license.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			privatePath := filepath.Join(outDir, "license_private.pem")
			publicPath := filepath.Join(outDir, "license_public.pem")
			if err := os.WriteFile(privatePath, []byte(privatePEM), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(publicPath, []byte(publicPEM), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", privatePath, publicPath)
			fmt.Println("keep the private key offline; set ANSWERVAULT_PUBLIC_KEY on the server")
			return nil
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for the PEM files")
	return cmd
}

func generateCmd() *cobra.Command {
	var customer, repo, keyPath string
	var expiryDays int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sign a license key for a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			privatePEM, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			claims := license.Claims{
				CustomerName: customer,
				AllowedRepo:  repo,
				IssuedAt:     time.Now().Unix(),
			}
			if expiryDays > 0 {
				claims.Expiry = time.Now().AddDate(0, 0, expiryDays).Unix()
			}
			key, err := license.Sign(string(privatePEM), claims)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&repo, "repo", "*", `allowed repository ("owner/repo" or "*")`)
	cmd.Flags().IntVar(&expiryDays, "expiry-days", 0, "days until expiry (0 = never)")
	cmd.Flags().StringVar(&keyPath, "key", "license_private.pem", "private key PEM file")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func inspectCmd() *cobra.Command {
	var pubPath string

	cmd := &cobra.Command{
		Use:   "inspect <license-key>",
		Short: "Verify a license key and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			publicPEM, err := os.ReadFile(pubPath)
			if err != nil {
				return fmt.Errorf("read public key: %w", err)
			}
			result := license.Verify(string(publicPEM), args[0], "")
			if !result.Valid {
				return fmt.Errorf("invalid license: %s", result.Reason)
			}
			out, err := json.MarshalIndent(result.Claims, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&pubPath, "pub", "license_public.pem", "public key PEM file")
	return cmd
}
