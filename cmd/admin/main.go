package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/certsmith/certportal/internal/config"
	"github.com/certsmith/certportal/internal/db"
	"github.com/certsmith/certportal/internal/db/repository"
	"github.com/certsmith/certportal/internal/pki"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Certificate portal administration tool",
	Long:  "Inspect and export issued certificates directly from the local database",
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage issued certificates",
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all issued certificates",
	RunE:  listCerts,
}

var certShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one certificate record",
	Args:  cobra.ExactArgs(1),
	RunE:  showCert,
}

var certExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a certificate bundle to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  exportCert,
}

var (
	exportFormat   string
	exportOut      string
	exportPassword string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (optional)")

	certExportCmd.Flags().StringVar(&exportFormat, "format", "pem", "Bundle format: pem or p12")
	certExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (defaults to the download filename)")
	certExportCmd.Flags().StringVar(&exportPassword, "password", "", "PKCS#12 password (empty produces an unencrypted container)")

	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certShowCmd)
	certCmd.AddCommand(certExportCmd)
	rootCmd.AddCommand(certCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func listCerts(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertRepository(database.DB)
	summaries, err := certRepo.List()
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No certificates found")
		return nil
	}

	fmt.Printf("\nTotal certificates: %d\n\n", len(summaries))
	fmt.Printf("%-5s %-30s %-8s %-12s %-20s %s\n", "ID", "CN", "Status", "Days", "Expires", "Key")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, s := range summaries {
		keyStr := "No"
		if s.HasPrivateKey {
			keyStr = "Yes"
		}
		fmt.Printf("%-5d %-30s %-8s %-12d %-20s %s\n",
			s.ID,
			s.CommonName,
			s.Status,
			s.ValidityDays,
			s.ExpiresAt.Format("2006-01-02 15:04:05"),
			keyStr,
		)
	}

	return nil
}

func showCert(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid certificate id: %q", args[0])
	}

	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertRepository(database.DB)
	rec, err := certRepo.GetByID(id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:            %d\n", rec.ID)
	fmt.Printf("Common Name:   %s\n", rec.CommonName)
	fmt.Printf("SANs:          %v\n", rec.SubjectAltNames)
	if rec.SerialNumber != "" {
		fmt.Printf("Serial Number: %s\n", rec.SerialNumber)
	}
	if rec.Profile != "" {
		fmt.Printf("Profile:       %s\n", rec.Profile)
	}
	fmt.Printf("Status:        %s\n", rec.Status)
	fmt.Printf("Issued At:     %s\n", rec.IssuedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expires At:    %s\n", rec.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Validity Days: %d\n", rec.ValidityDays)
	fmt.Printf("Private Key:   %t\n", rec.PrivateKeyPEM != "")
	fmt.Printf("\n%s\n", rec.CertificatePEM)

	return nil
}

func exportCert(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid certificate id: %q", args[0])
	}

	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertRepository(database.DB)
	rec, err := certRepo.GetByID(id)
	if err != nil {
		return err
	}

	var (
		bundle   []byte
		filename string
	)
	switch exportFormat {
	case "pem":
		bundle, filename, err = pki.PEMBundle(rec)
	case "p12":
		bundle, filename, err = pki.PKCS12Bundle(rec, exportPassword)
	default:
		return fmt.Errorf("unknown format %q (expected pem or p12)", exportFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to build bundle: %w", err)
	}

	out := exportOut
	if out == "" {
		out = filename
	}
	if err := os.WriteFile(out, bundle, 0o600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	fmt.Printf("Wrote %s (%d bytes)\n", out, len(bundle))
	return nil
}
