// Package a2a defines the wire types of the agent-to-agent protocol spoken by
// a2aflow servers and a small HTTP client for talking to them.
//
// A server exposes four kinds of endpoints:
//
//	GET  /.well-known/agent.json   Agent Card (discovery)
//	GET  /health                   liveness and server info
//	POST /invoke                   generic invoke envelope
//	GET|POST <workflow path>       per-workflow info and direct invoke
//
// The Client wraps those endpoints:
//
//	c := a2a.NewClient("http://localhost:8080", func(o *a2a.ClientOptions) {
//		o.Token = os.Getenv("A2A_TOKEN")
//	})
//	card, err := c.Card(ctx)
//	resp, err := c.Invoke(ctx, a2a.InvokeRequest{Workflow: "EchoWorkflow", Input: map[string]any{"text": "hi"}})
package a2a
