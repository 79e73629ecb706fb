package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/ui"
)

var rmYes bool

// docsCmd lists documents
var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"ls"},
	Short:   "List uploaded documents",
	Args:    cobra.NoArgs,
	RunE:    runDocs,
}

// renameCmd renames a document
var renameCmd = &cobra.Command{
	Use:   "rename <old-name> <new-name>",
	Short: "Rename a document",
	Long: `Rename a document. Its chunks are renamed in the same transaction, so
questions scoped to the new name find them immediately.`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

// rmCmd deletes a document
var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a document",
	Long:  `Delete a document, its chunks and its saved file. History entries are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "do not ask for confirmation")
}

func runDocs(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.qa.ListDocuments()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents uploaded.")
		fmt.Println("\nRun 'docqa upload <file>' to add one.")
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{
			d.Name,
			d.MIME,
			formatBytes(d.SizeBytes),
			strconv.Itoa(d.ChunkCount),
			formatTime(d.CreatedAt),
		})
	}

	fmt.Println(ui.Table([]string{"NAME", "TYPE", "SIZE", "CHUNKS", "ADDED"}, rows))
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	oldName, newName := args[0], args[1]

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.qa.RenameDocument(oldName, newName)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"renamed": ok, "old_name": oldName, "new_name": newName})
	}
	if !ok {
		return fmt.Errorf("could not rename %q to %q: the document does not exist or the new name is taken", oldName, newName)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Renamed %s to %s", oldName, strings.TrimSpace(newName))))
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.store.GetDocument(name)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", name)
	}

	if !rmYes && !jsonOutput {
		fmt.Printf("Delete '%s' and its %d chunks? [y/N]: ", name, doc.ChunkCount)
		reader := bufio.NewReader(os.Stdin)
		confirm, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(confirm)) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	ok, err := a.qa.DeleteDocument(name)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"deleted": ok, "name": name})
	}
	fmt.Println(ui.Success.Render(fmt.Sprintf("Document '%s' deleted.", name)))
	return nil
}
