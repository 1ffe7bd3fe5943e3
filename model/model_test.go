package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModelCollect(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hello", "world")

	resp, err := Collect(context.Background(), m, Prompt("sys", "hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sys", reqs[0].System)
}

func TestMockModelDefaultResponse(t *testing.T) {
	m := NewMockModel("mock", "mock")
	resp, err := Collect(context.Background(), m, Prompt("", "ping"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: ping", resp.Text)
}

func TestCollectStreaming(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("q", "abc")

	req := Prompt("", "q")
	req.Stream = true

	var partials []string
	resp, err := Collect(context.Background(), m, req, func(r Response) { partials = append(partials, r.Text) })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, partials)
	assert.Equal(t, "abc", resp.Text)
}

func TestCollectError(t *testing.T) {
	m := NewMockModel("mock", "mock")
	boom := errors.New("provider down")
	m.FailWith(boom)

	_, err := Collect(context.Background(), m, Prompt("", "q"), nil)
	assert.ErrorIs(t, err, boom)

	_, err = Collect(context.Background(), NewMockModel("m", "p"), Request{}, nil)
	assert.Error(t, err)
}

func TestLastUserText(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleUser, Text: "first"},
		{Role: RoleAssistant, Text: "reply"},
		{Role: RoleUser, Text: "second"},
		{Role: RoleAssistant, Text: "again"},
	}}
	assert.Equal(t, "second", req.LastUserText())
	assert.Equal(t, "", Request{}.LastUserText())
}
