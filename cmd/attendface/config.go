package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	Run:   runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func secretState(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

func runConfig(cmd *cobra.Command, args []string) {
	fmt.Println("Current Configuration")
	fmt.Println("=====================")

	fmt.Println("\nServer:")
	fmt.Printf("  Address:          %s\n", cfg.Addr())
	fmt.Printf("  Request timeout:  %ds\n", cfg.Server.RequestTimeout)
	fmt.Printf("  Max upload:       %d bytes\n", cfg.Server.MaxUploadBytes)
	fmt.Printf("  Allowed origins:  %v\n", cfg.Server.AllowedOrigins)

	fmt.Println("\nRecognition:")
	fmt.Printf("  Tolerance:        %.2f\n", cfg.Recognition.Tolerance)
	fmt.Printf("  Model path:       %s\n", cfg.Recognition.ModelPath)
	fmt.Printf("  Backend:          %s\n", cfg.Recognition.Backend)
	fmt.Printf("  Duplicate check:  %v\n", cfg.Recognition.DuplicateCheck)
	fmt.Printf("  Detect timeout:   %ds\n", cfg.Recognition.DetectTimeout)
	fmt.Printf("  Max dimension:    %dpx\n", cfg.Recognition.MaxImageDimension)
	fmt.Printf("  Max pixels:       %d\n", cfg.Recognition.MaxImagePixels)
	fmt.Printf("  Crop padding:     %dpx\n", cfg.Recognition.CropPadding)

	fmt.Println("\nStorage:")
	fmt.Printf("  Backend:          %s\n", cfg.Storage.Backend)
	fmt.Printf("  Data dir:         %s\n", cfg.Storage.DataDir)
	fmt.Printf("  Encryption:       %v\n", cfg.Storage.EncryptionEnabled)
	fmt.Printf("  Save crops:       %v\n", cfg.Storage.SaveCrops)

	fmt.Println("\nDatabase:")
	fmt.Printf("  DSN:              %s\n", secretState(cfg.Database.DSN))
	fmt.Printf("  Max open conns:   %d\n", cfg.Database.MaxOpenConns)
	fmt.Printf("  Max idle conns:   %d\n", cfg.Database.MaxIdleConns)

	fmt.Println("\nAuth:")
	fmt.Printf("  JWT secret:       %s\n", secretState(cfg.Auth.JWTSecret))
	fmt.Printf("  Token TTL:        %dm\n", cfg.Auth.TokenTTLMinutes)

	fmt.Println("\nAttendance:")
	fmt.Printf("  Late after:       %s\n", cfg.Attendance.LateAfter)
	fmt.Printf("  Absent sweep:     %v (%s)\n", cfg.Attendance.AbsentSweepEnabled, cfg.Attendance.AbsentSweepCron)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level:            %s\n", cfg.Logging.Level)
	fmt.Printf("  Format:           %s\n", cfg.Logging.Format)
	if cfg.Logging.File != "" {
		fmt.Printf("  File:             %s\n", cfg.Logging.File)
	}
}
