package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livetemplate/tinkerblog/internal/code"
	"github.com/livetemplate/tinkerblog/internal/highlight"
)

func newHighlightCommand(global *globalOptions) *cobra.Command {
	var (
		lang  string
		theme string
	)

	cmd := &cobra.Command{
		Use:   "highlight <file>",
		Short: "Print a source file as highlighted HTML",
		Example: `  tinkerblog highlight main.go
  tinkerblog highlight snippet.txt --lang js --theme monokai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			if lang == "" {
				lang = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}

			h, err := highlight.New(theme)
			if err != nil {
				return err
			}
			renderer := code.NewRenderer(h, nil, nil, global.logger)
			out, err := renderer.RenderHTML(cmd.Context(), code.Request{Source: string(src), Language: lang})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language (default is the file extension)")
	cmd.Flags().StringVarP(&theme, "theme", "t", highlight.DefaultTheme, "chroma style name")
	return cmd
}
