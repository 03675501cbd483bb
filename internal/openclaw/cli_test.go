package openclaw

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeClient(run runFunc) *Client {
	c := NewClient(time.Second, nil)
	c.run = run
	c.lookPath = func(string) (string, error) { return "/usr/bin/openclaw", nil }
	return c
}

func TestHealthParsesReport(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, []string{"health", "--json"}, args)
		return []byte(`{"ok": true, "defaultAgentId": "main", "version": "2.1.0"}`), nil, nil
	})

	report, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, "main", report.DefaultAgentID)
	assert.Equal(t, "2.1.0", report.Version)
}

func TestHealthUnparseableOutput(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("gateway starting up..."), nil, nil
	})

	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable health output")
}

func TestAgentsAcceptsBareArray(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`[{"id": "main", "name": "Main", "isDefault": true}]`), nil, nil
	})

	agents, err := c.Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "main", agents[0].Key())
	assert.True(t, agents[0].IsDefault)
}

func TestAgentsAcceptsWrappedObject(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"agents": [{"agentId": "research", "model": "opus"}]}`), nil, nil
	})

	agents, err := c.Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "research", agents[0].Key())
	assert.Equal(t, "opus", agents[0].Model)
}

func TestRunAgentParsesResult(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Contains(t, args, "--agent")
		assert.Contains(t, args, "coder")
		return []byte(`{
			"status": "ok",
			"runId": "run-42",
			"result": {
				"payloads": [{"text": "all done"}],
				"meta": {"durationMs": 1200, "agentMeta": {"model": "sonnet"}}
			}
		}`), nil, nil
	})

	result, err := c.RunAgent(context.Background(), "coder", "do it", 0)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, "all done", result.Output())
	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, int64(1200), result.Result.Meta.DurationMs)
}

func TestRunAgentWrapsNonJSONOutput(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("plain text answer\n"), nil, nil
	})

	result, err := c.RunAgent(context.Background(), "coder", "do it", 0)
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, "plain text answer", result.Raw)
	assert.Empty(t, result.Output())
}

func TestInvokeTimeout(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	})
	c.timeout = 20 * time.Millisecond

	_, err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrCommandTimeout)
}

func TestInvokeCLINotFound(t *testing.T) {
	c := newFakeClient(nil)
	c.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	_, err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrCLINotFound)
}

func TestInvokeNonZeroExitWithOutputTolerated(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"ok": false}`), []byte("degraded"), &exec.ExitError{}
	})

	report, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK)
}

func TestInvokeHardFailure(t *testing.T) {
	c := newFakeClient(func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, nil, errors.New("fork failed")
	})

	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fork failed")
}
