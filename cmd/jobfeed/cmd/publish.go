package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

var (
	publishJSON string
	publishSets []string
)

var publishCmd = &cobra.Command{
	Use:   "publish <topic>",
	Short: "Publish a JSON message to a topic",
	Example: `  jobfeed publish /app/jobs --set title="Go Developer" --set applicantCount=0
  jobfeed publish /app/jobs --json '{"title":"SRE"}' --set requirements.0=Go`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildPayload(publishJSON, publishSets)
		if err != nil {
			return err
		}

		client, err := app.NewClient()
		if err != nil {
			return err
		}
		if err := app.Connect(cmd.Context(), client); err != nil {
			return err
		}
		client.Publish(args[0], payload)
		client.Disconnect()

		fmt.Fprintf(cmd.OutOrStdout(), "published to %s: %s\n", args[0], payload)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishJSON, "json", "", "base JSON document")
	publishCmd.Flags().StringArrayVar(&publishSets, "set", nil, "set path=value on the document (repeatable)")
	rootCmd.AddCommand(publishCmd)
}

// buildPayload applies each path=value to base. Values that parse as JSON
// are inserted raw, anything else as a string.
func buildPayload(base string, sets []string) (json.RawMessage, error) {
	doc := []byte(base)
	if base == "" {
		doc = []byte("{}")
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("--json is not valid JSON")
	}

	for _, set := range sets {
		path, value, ok := strings.Cut(set, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q, want path=value", set)
		}

		var err error
		if json.Valid([]byte(value)) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", path, err)
		}
	}
	return json.RawMessage(doc), nil
}
