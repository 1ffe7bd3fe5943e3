package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/a2aflow/a2a"
)

var (
	invokeInput string
	invokeURL   string
	invokeToken string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <workflow>",
	Short: "Run a workflow once",
	Long: `Run a workflow by name or path, in-process or on a running server with
--url, and print the response.`,
	Example: `  a2aflow invoke EchoWorkflow --input '{"text":"hi"}'
  a2aflow invoke /agents/echo --url http://localhost:8080 --token secret`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeInput, "input", "i", "{}", "JSON input object")
	invokeCmd.Flags().StringVar(&invokeURL, "url", "", "invoke on a running server")
	invokeCmd.Flags().StringVar(&invokeToken, "token", "", "bearer token for --url")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	var input map[string]any
	if err := json.Unmarshal([]byte(invokeInput), &input); err != nil {
		return fmt.Errorf("invalid --input: %w", err)
	}

	var resp *a2a.InvokeResponse

	if invokeURL != "" {
		client := a2a.NewClient(invokeURL, func(o *a2a.ClientOptions) { o.Token = invokeToken })

		var err error
		resp, err = client.Invoke(cmd.Context(), a2a.InvokeRequest{Workflow: args[0], Input: input})
		if err != nil {
			var apiErr *a2a.Error
			if errors.As(err, &apiErr) && apiErr.Body.Tasks != nil {
				_ = printJSON(cmd, apiErr.Body)
			}
			return err
		}
	} else {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		res, err := rt.app.Invoke(cmd.Context(), args[0], input)
		if err != nil {
			return err
		}
		resp = a2a.NewInvokeResponse(res)
		if !res.Succeeded() {
			_ = printJSON(cmd, resp)
			return fmt.Errorf("workflow %s failed: %s", res.Workflow, res.Error)
		}
	}

	return printJSON(cmd, resp)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
