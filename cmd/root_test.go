package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/pipeline"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

type fakeApp struct {
	result   pipeline.RunResult
	runErr   error
	serveErr error
	served   bool
	closed   bool
}

func (f *fakeApp) RunOnce(context.Context) (pipeline.RunResult, error) { return f.result, f.runErr }

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return f.serveErr
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

// withFakeApp swaps the application factory for the duration of a test.
func withFakeApp(t *testing.T, app *fakeApp, factoryErr error) *appOptions {
	t.Helper()
	seen := &appOptions{}
	original := newApp
	newApp = func(_ context.Context, opts appOptions) (App, error) {
		*seen = opts
		if factoryErr != nil {
			return nil, factoryErr
		}
		return app, nil
	}
	t.Cleanup(func() { newApp = original })
	return seen
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandDelivered(t *testing.T) {
	app := &fakeApp{result: pipeline.RunResult{RunID: "run-1", Outcome: profile.OutcomeDelivered}}
	opts := withFakeApp(t, app, nil)

	out, err := execute("run", "--config", "aggregator.yaml", "--mode", "best_effort")
	require.NoError(t, err)
	assert.Contains(t, out, "delivered successfully")
	assert.Equal(t, appOptions{ConfigPath: "aggregator.yaml", Mode: "best_effort"}, *opts)
	assert.True(t, app.closed)
}

func TestRunCommandFallbackExitsZero(t *testing.T) {
	app := &fakeApp{result: pipeline.RunResult{
		RunID:       "run-2",
		Outcome:     profile.OutcomeFallback,
		FallbackURI: "file:///data/user_profile.json",
	}}
	withFakeApp(t, app, nil)

	out, err := execute("run")
	require.NoError(t, err)
	assert.Contains(t, out, "delivery failed, saved fallback to file:///data/user_profile.json")
}

func TestRunCommandAbortedFails(t *testing.T) {
	app := &fakeApp{
		result: pipeline.RunResult{RunID: "run-3", Outcome: profile.OutcomeAborted},
		runErr: errors.New("source iban: network: connection refused"),
	}
	withFakeApp(t, app, nil)

	out, err := execute("run")
	require.Error(t, err)
	assert.Contains(t, out, "fetch failed, aborting")
	assert.Contains(t, err.Error(), "outcome aborted")
	assert.True(t, app.closed)
}

func TestRunCommandNotStarted(t *testing.T) {
	withFakeApp(t, &fakeApp{runErr: pipeline.ErrRunInProgress}, nil)

	_, err := execute("run")
	require.ErrorIs(t, err, pipeline.ErrRunInProgress)
}

func TestFactoryErrorIsReported(t *testing.T) {
	withFakeApp(t, nil, errors.New("delivery.url must be set"))

	_, err := execute("serve")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestServeCommand(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	_, err := execute("serve")
	require.NoError(t, err)
	assert.True(t, app.served)
	assert.True(t, app.closed)

	app = &fakeApp{serveErr: errors.New("address in use")}
	withFakeApp(t, app, nil)
	_, err = execute("serve")
	require.ErrorContains(t, err, "address in use")
}

func TestHelpDoesNotBuildApp(t *testing.T) {
	opts := withFakeApp(t, nil, errors.New("must not be called"))

	out, err := execute("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "run")
	assert.Equal(t, appOptions{}, *opts)
}
