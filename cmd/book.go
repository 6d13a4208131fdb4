package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/library"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Manage the catalogue",
}

var bookAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book to the catalogue",
	Long: `Add a book to the catalogue. All copies start on the shelf.

The optional cover image is stored as the reference that issue-time cover
photos are compared against.

Examples:
  smart-library book add --title "Dune" --author "Frank Herbert" --barcode BC-1001
  smart-library book add --title "Dune" --barcode BC-1002 --quantity 3 --cover-file dune.jpg`,
	Args: cobra.NoArgs,
	RunE: runBookAdd,
}

var bookListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List or search the catalogue",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBookList,
}

func init() {
	rootCmd.AddCommand(bookCmd)
	bookCmd.AddCommand(bookAddCmd, bookListCmd)

	bookAddCmd.Flags().String("title", "", "Title (required)")
	bookAddCmd.Flags().String("author", "", "Author")
	bookAddCmd.Flags().String("isbn", "", "ISBN")
	bookAddCmd.Flags().String("barcode", "", "Barcode printed on the copies (required)")
	bookAddCmd.Flags().Int("quantity", 1, "Number of copies")
	bookAddCmd.Flags().String("cover-file", "", "Cover image")

	bookListCmd.Flags().Bool("available", false, "Only books with a copy on the shelf")
	bookListCmd.Flags().Bool("json", false, "Output as JSON")
}

// coverDataURL reads an image file as a data URL, the form the kiosk sends covers in.
func coverDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}
	mime := "jpeg"
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		mime = "png"
	}
	return "data:image/" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func runBookAdd(cmd *cobra.Command, args []string) error {
	book := &database.Book{
		Title:    strings.TrimSpace(mustGetString(cmd, "title")),
		Author:   strings.TrimSpace(mustGetString(cmd, "author")),
		ISBN:     strings.TrimSpace(mustGetString(cmd, "isbn")),
		Barcode:  strings.TrimSpace(mustGetString(cmd, "barcode")),
		Quantity: mustGetInt(cmd, "quantity"),
	}
	if book.Title == "" || book.Barcode == "" {
		return errors.New("--title and --barcode are required")
	}
	if book.Quantity <= 0 {
		return errors.New("--quantity must be positive")
	}
	if path := mustGetString(cmd, "cover-file"); path != "" {
		cover, err := coverDataURL(path)
		if err != nil {
			return err
		}
		book.CoverImage = cover
	}

	ctx := cmd.Context()
	if _, err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	books, err := database.GetBookWriter(ctx)
	if err != nil {
		return err
	}
	if err := books.CreateBook(ctx, book); err != nil {
		if errors.Is(err, database.ErrDuplicateBarcode) {
			return fmt.Errorf("barcode %s is already in the catalogue", book.Barcode)
		}
		return fmt.Errorf("create book: %w", err)
	}
	fmt.Printf("Added %q (%d copies) as book %d\n", book.Title, book.Quantity, book.ID)
	return nil
}

func runBookList(cmd *cobra.Command, args []string) error {
	var query string
	if len(args) == 1 {
		query = args[0]
	}

	ctx := cmd.Context()
	if _, err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	books, err := database.GetBookReader(ctx)
	if err != nil {
		return err
	}
	list, err := library.SearchBooks(ctx, books, query, mustGetBool(cmd, "available"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		type row struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Author    string `json:"author"`
			ISBN      string `json:"isbn,omitempty"`
			Barcode   string `json:"barcode"`
			Quantity  int    `json:"quantity"`
			Available int    `json:"available"`
		}
		rows := make([]row, len(list))
		for i, b := range list {
			rows[i] = row{b.ID, b.Title, b.Author, b.ISBN, b.Barcode, b.Quantity, b.Available}
		}
		return outputJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBARCODE\tTITLE\tAUTHOR\tAVAILABLE")
	for _, b := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\n", b.ID, b.Barcode, b.Title, b.Author, b.Available, b.Quantity)
	}
	return w.Flush()
}
