package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

func repromptEvent() model.RawEvent {
	return model.RawEvent{ID: "ev-1", RawText: "Testnet X: bridge $50 to Arbitrum, backed by Paradigm"}
}

func TestReprompt_FirstPassValid(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: validExtractionJSON},
	}}
	ctrl := NewRepromptController(testGateway(client, 1), 2)

	action, ext, state, err := ctrl.Run(context.Background(), repromptEvent())
	require.NoError(t, err)
	assert.Equal(t, RepromptPending, state)
	assert.Equal(t, model.ValidationValid, action.ValidationStatus)
	assert.Equal(t, "include", ext.Decision)
	assert.Equal(t, 1, action.Attempts)
	assert.Equal(t, 1, client.calls)
}

func TestReprompt_CorrectedAfterRetry(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: `{"decision":"maybe","cost_of_entry":{"confidence":"low"}}`},
		{text: validExtractionJSON},
	}}
	ctrl := NewRepromptController(testGateway(client, 1), 2)

	action, _, state, err := ctrl.Run(context.Background(), repromptEvent())
	require.NoError(t, err)
	assert.Equal(t, RepromptCorrected, state)
	assert.Equal(t, model.ValidationCorrected, action.ValidationStatus)
	assert.Equal(t, 2, action.Attempts)

	// The retry prompt carries the first attempt's violations.
	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].Messages[0].Content, `"decision" must be`)
}

func TestReprompt_SchemaExhausted(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: `{"decision":"maybe","cost_of_entry":{"confidence":"low"}}`},
	}}
	ctrl := NewRepromptController(testGateway(client, 1), 2)

	action, ext, state, err := ctrl.Run(context.Background(), repromptEvent())
	require.ErrorIs(t, err, ErrSchemaExhausted)
	assert.Nil(t, action)
	assert.Nil(t, ext)
	assert.Equal(t, RepromptFailed, state)
	// First attempt plus two retries.
	assert.Equal(t, 3, client.calls)
}

func TestReprompt_GatewayErrorPropagates(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: eris.New("service unavailable")},
	}}
	ctrl := NewRepromptController(testGateway(client, 1), 2)

	action, _, _, err := ctrl.Run(context.Background(), repromptEvent())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaExhausted)
	assert.Nil(t, action)
}

func TestReprompt_ZeroRetriesSingleAttempt(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "not json"},
	}}
	ctrl := NewRepromptController(testGateway(client, 1), 0)

	_, _, _, err := ctrl.Run(context.Background(), repromptEvent())
	require.ErrorIs(t, err, ErrSchemaExhausted)
	assert.Equal(t, 1, client.calls)
}
