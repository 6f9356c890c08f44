package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

var (
	// List command flags
	listLimit  int
	listFields []string
	listParams map[string]string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list PATH [flags]",
	Short: "List the items of a paginated API collection",
	Long: `List the items of a paginated collection, following "next" links until the
collection is exhausted or --limit items have been printed.

Examples:
  # List your projects
  amigo list /me/projects

  # Only show some fields
  amigo list /me/projects --fields id,name

  # List the datasets of a project in JSON format
  amigo list users/1234/projects/5678/datasets -j`,
	Args: cobra.ExactArgs(1),
	RunE: listItems,
}

// listItems walks the collection with a cursor and prints each item.
func listItems(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	cur, err := client.GetCursor(ctx, args[0], listParams)
	if err != nil {
		return err
	}

	var items []any
	for listLimit <= 0 || len(items) < listLimit {
		raw, err := cur.Next(ctx)
		if errors.Is(err, amigocloud.ErrCursorDone) {
			break
		}
		if err != nil {
			return err
		}
		items = append(items, selectFields(gjson.ParseBytes(raw), listFields))
	}

	if jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]any{
			"count": cur.Count(),
			"items": items,
		})
		return nil
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No items found")
		return nil
	}
	if err := printValue(cmd.OutOrStdout(), items); err != nil {
		return err
	}
	if n := cur.Count(); n >= 0 {
		infoLabel.Fprintf(cmd.OutOrStdout(), "%d of %s items\n", len(items), strconv.FormatInt(n, 10))
	}
	return nil
}

// selectFields keeps only fields of an object item; all of it when fields is empty.
func selectFields(item gjson.Result, fields []string) any {
	if len(fields) == 0 || !item.IsObject() {
		return item.Value()
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v := item.Get(f); v.Exists() {
			out[f] = v.Value()
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 0, "Maximum number of items to print (0 for all)")
	listCmd.Flags().StringSliceVar(&listFields, "fields", nil, "Comma separated fields to print")
	listCmd.Flags().StringToStringVarP(&listParams, "param", "p", nil, "Query parameters as key=value")
}
