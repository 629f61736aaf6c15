// Package cli contains the sfmexport command line interface.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig       = "config"
	flagScene        = "scene"
	flagOutput       = "output"
	flagRenderSource = "render-source"
	flagFormat       = "format"
	flagDebug        = "debug"
)

var app = &cli.App{
	Name:            "sfmexport",
	Usage:           "export scene cameras and geometry as a structure-from-motion model",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "export",
			Usage:     "export a scene file",
			UsageText: "sfmexport export --config <config.json> --scene <scene.json> [--render-source <dir>]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagConfig,
					Aliases:  []string{"c"},
					Usage:    "load export configuration from `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:     flagScene,
					Usage:    "load the scene from `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:  flagOutput,
					Usage: "override the configured output `DIR`",
				},
				&cli.StringFlag{
					Name:  flagRenderSource,
					Usage: "read pre-rendered images named after their cameras from `DIR`",
				},
			},
			Action: ExportAction,
		},
		{
			Name:      "inspect",
			Usage:     "summarize and validate an exported model",
			ArgsUsage: "<model dir>",
			Action:    InspectAction,
		},
		{
			Name:      "convert",
			Usage:     "rewrite a model in another encoding",
			ArgsUsage: "<model dir> <output dir>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagFormat,
					Usage:    "target encoding: text or binary",
					Required: true,
				},
			},
			Action: ConvertAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
