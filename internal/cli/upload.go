package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/ui"
)

var uploadName string

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents",
	Long: `Upload one or more documents so they can be asked about.

Supported types: .txt, .md, .html, .csv, .json, .docx and .pdf. Each file is
saved under the uploads directory, split into chunks and embedded. When a
document with the same name exists the new one is saved as name_1, name_2, ...

Examples:
  # Upload a file
  docqa upload handbook.pdf

  # Upload under another name
  docqa upload draft-v7.docx --name proposal.docx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "document name to use (single file only)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadName != "" && len(args) > 1 {
		return fmt.Errorf("--name can only be used with a single file")
	}

	ctx, cancel := interruptContext()
	defer cancel()

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var results []*indexer.UploadResult
	failed := 0

	for _, path := range args {
		name := uploadName
		if name == "" {
			name = filepath.Base(path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Error("Failed to read file", "path", path, "error", err)
			failed++
			continue
		}

		res, err := a.uploader.UploadDocument(ctx, content, name)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println(ui.Warning.Render("Upload cancelled"))
				return nil
			}
			log.Error("Upload failed", "path", path, "error", err)
			failed++
			continue
		}
		results = append(results, res)

		if !jsonOutput {
			fmt.Printf("%s %s %s\n",
				ui.Success.Render("Uploaded"),
				ui.DocName.Render(res.SavedAs),
				ui.Dim.Render(fmt.Sprintf("(%s, %s, %d chunks)", formatBytes(res.SizeBytes), res.MIME, res.Chunks)),
			)
		}
	}

	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}
