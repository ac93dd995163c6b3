package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
)

// Globals are shared by all commands.
type Globals struct {
	Config  string `short:"c" default:"config/config.yaml" type:"path" help:"Path to the YAML configuration file."`
	EnvFile string `name:"env-file" default:".env" type:"path" help:"Optional .env file loaded into the environment."`
}

var cli struct {
	Globals

	Serve     ServeCmd     `cmd:"" default:"1" help:"Run the transcription web service."`
	DriveAuth DriveAuthCmd `cmd:"" name:"drive-auth" help:"Authorize Google Drive export and store the OAuth token."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("transcriber"),
		kong.Description("Upload audio or video, transcribe it with Whisper and download the subtitles as SubRip (.srt)."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli.Globals); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
