package main

import (
	"context"
	"fmt"
	"os"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/config"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/storage"
)

// DriveAuthCmd runs the OAuth consent flow once and stores the token the
// server uses for Drive export.
type DriveAuthCmd struct{}

func (d *DriveAuthCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config, g.EnvFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.GoogleDrive.CredentialsFile == "" || cfg.GoogleDrive.TokenFile == "" {
		return fmt.Errorf("google_drive.credentials_file and google_drive.token_file must be set")
	}

	if err := storage.Authorize(context.Background(), cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile, os.Stdin, os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nToken saved to %s\n", cfg.GoogleDrive.TokenFile)
	return nil
}
