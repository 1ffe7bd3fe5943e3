// Package testutil contains helper builders and stubs used across tests to
// reduce boilerplate when constructing execution contexts and task
// implementations. They are not intended for production usage.
package testutil
