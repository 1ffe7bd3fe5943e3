// Package dsl implements the workflow definition builder.
//
// A Builder records a declarative description of a workflow (task verbs,
// conditions, hooks, error handlers and policies) without executing anything
// and compiles it into an immutable *core.WorkflowDefinition:
//
//	def, err := dsl.New("SupportWorkflow").
//		Describe("Answers customer questions").
//		BeforeAll(openTicket).
//		AfterAll(closeTicket).
//		Do(func(b *dsl.Builder) {
//			b.DBFetch("customer").Table("customers").Query("SELECT * FROM customers WHERE id = ?").
//				Args("customer_id").Single().OutputKey("customer").Output("customer")
//			b.Chat("answer").Prompt("Answer {{.question}} for {{.customer.name}}").
//				Input("question", "customer").Output("answer").Retries(2)
//			b.Email("notify").To("{{.customer.email}}").Subject("Your answer").
//				BodyFunc(func(ec *core.ExecutionContext) string { s, _ := ec.GetString("answer"); return s }).
//				SkipWhen("notify", false)
//		}).
//		Build()
//
// Each task verb returns a typed configurator. Common setters (Input, Output,
// RunIf, Retries, ...) are shared by all configurators; task types add their
// own first-class setters, and Set(key, value) stores anything else in the
// configuration's option bag. Misuse is reported by Build as
// *core.DefinitionError values, never at invocation time.
package dsl
