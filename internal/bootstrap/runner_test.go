package bootstrap_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitudev/secretboot/internal/blob"
	"github.com/vitudev/secretboot/internal/bootstrap"
	apperrors "github.com/vitudev/secretboot/internal/errors"
)

type fakeAuth struct {
	err   error
	calls int
	order *[]string
}

func (f *fakeAuth) Login(ctx context.Context) error {
	f.calls++
	if f.order != nil {
		*f.order = append(*f.order, "login")
	}
	return f.err
}

type fakeSource struct {
	env   *blob.Envelope
	err   error
	calls int
	order *[]string
}

func (f *fakeSource) Fetch(ctx context.Context) (*blob.Envelope, error) {
	f.calls++
	if f.order != nil {
		*f.order = append(*f.order, "fetch")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.env, nil
}

type fakeDecryptor struct {
	plaintext []byte
	err       error
	calls     int
	order     *[]string
}

func (f *fakeDecryptor) Decrypt(ctx context.Context, env *blob.Envelope) ([]byte, error) {
	f.calls++
	if f.order != nil {
		*f.order = append(*f.order, "decrypt")
	}
	if f.err != nil {
		return nil, f.err
	}
	// The runner wipes the returned buffer, so hand out a copy.
	return append([]byte(nil), f.plaintext...), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEnvelope() *blob.Envelope {
	return &blob.Envelope{Version: blob.EnvelopeVersion, Backend: "local", Ciphertext: "aGVsbG8="}
}

func newRunner(t *testing.T, auth *fakeAuth, src *fakeSource, dec *fakeDecryptor, outputPath string) *bootstrap.Runner {
	t.Helper()
	logger := testLogger()
	return bootstrap.NewRunner(auth, src, dec, outputPath, 5*time.Second, apperrors.NewErrorClassifier(logger), logger)
}

// TestRun_Success verifies a full pass writes the plaintext config.
func TestRun_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	auth := &fakeAuth{}
	src := &fakeSource{env: testEnvelope()}
	dec := &fakeDecryptor{plaintext: []byte("db_host=127.0.0.1\n")}

	runner := newRunner(t, auth, src, dec, out)
	classified := runner.Run(context.Background())

	require.Nil(t, classified)
	assert.Equal(t, bootstrap.StateDone, runner.State())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "db_host=127.0.0.1\n", string(data))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestRun_AuthFailureAborts verifies that an authentication failure stops
// the sequence before the blob is fetched or decrypted and writes nothing.
func TestRun_AuthFailureAborts(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	auth := &fakeAuth{err: apperrors.ErrAuthentication}
	src := &fakeSource{env: testEnvelope()}
	dec := &fakeDecryptor{plaintext: []byte("never")}

	runner := newRunner(t, auth, src, dec, out)
	classified := runner.Run(context.Background())

	require.NotNil(t, classified)
	assert.Equal(t, apperrors.ClassAuthentication, classified.Class)
	assert.Equal(t, bootstrap.StepAuthenticate, classified.Step)
	assert.Equal(t, bootstrap.StateFailed, runner.State())

	assert.Zero(t, src.calls)
	assert.Zero(t, dec.calls)

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

// TestRun_DecryptBeforeAuthNeverHappens verifies step ordering.
func TestRun_DecryptBeforeAuthNeverHappens(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	var order []string
	auth := &fakeAuth{order: &order}
	src := &fakeSource{env: testEnvelope(), order: &order}
	dec := &fakeDecryptor{plaintext: []byte("x"), order: &order}

	runner := newRunner(t, auth, src, dec, out)
	require.Nil(t, runner.Run(context.Background()))

	assert.Equal(t, []string{"login", "fetch", "decrypt"}, order)
}

// TestRun_DecryptFailurePreservesPreviousConfig verifies a failed decrypt
// leaves an existing config byte-identical and no temp files behind.
func TestRun_DecryptFailurePreservesPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "config")
	previous := []byte("db_host=10.0.0.1\n")
	require.NoError(t, os.WriteFile(out, previous, 0o600))

	auth := &fakeAuth{}
	src := &fakeSource{env: testEnvelope()}
	dec := &fakeDecryptor{err: apperrors.ErrDecryption}

	runner := newRunner(t, auth, src, dec, out)
	classified := runner.Run(context.Background())

	require.NotNil(t, classified)
	assert.Equal(t, apperrors.ClassDecryption, classified.Class)
	assert.Equal(t, bootstrap.StepDecrypt, classified.Step)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, previous, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should remain")
}

// TestRun_FetchFailure verifies a missing blob aborts before decryption.
func TestRun_FetchFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	auth := &fakeAuth{}
	src := &fakeSource{err: apperrors.ErrConfiguration}
	dec := &fakeDecryptor{plaintext: []byte("never")}

	runner := newRunner(t, auth, src, dec, out)
	classified := runner.Run(context.Background())

	require.NotNil(t, classified)
	assert.Equal(t, apperrors.ClassConfiguration, classified.Class)
	assert.Equal(t, bootstrap.StepFetchBlob, classified.Step)
	assert.Zero(t, dec.calls)
}

// TestRun_WriteFailure verifies an unwritable output path classifies as IO
// and that the failure happens after a successful decrypt.
func TestRun_WriteFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing-subdir", "config")
	auth := &fakeAuth{}
	src := &fakeSource{env: testEnvelope()}
	dec := &fakeDecryptor{plaintext: []byte("x")}

	runner := newRunner(t, auth, src, dec, out)
	classified := runner.Run(context.Background())

	require.NotNil(t, classified)
	assert.Equal(t, apperrors.ClassIO, classified.Class)
	assert.Equal(t, bootstrap.StepWriteOutput, classified.Step)
}

// TestRun_Idempotent verifies two runs with unchanged inputs produce
// byte-identical output.
func TestRun_Idempotent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	auth := &fakeAuth{}
	src := &fakeSource{env: testEnvelope()}
	dec := &fakeDecryptor{plaintext: []byte("db_host=127.0.0.1\n")}

	runner := newRunner(t, auth, src, dec, out)
	require.Nil(t, runner.Run(context.Background()))
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	require.Nil(t, runner.Run(context.Background()))
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, auth.calls, "every run redoes the login")
}

// TestRun_StepTimeoutBoundsSlowStep verifies every step runs under a
// deadline, so a hanging backend cannot stall the bootstrap forever.
func TestRun_StepTimeoutBoundsSlowStep(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	logger := testLogger()
	runner := bootstrap.NewRunner(
		&hangingAuth{},
		&fakeSource{env: testEnvelope()},
		&fakeDecryptor{plaintext: []byte("x")},
		out,
		20*time.Millisecond,
		apperrors.NewErrorClassifier(logger),
		logger,
	)

	done := make(chan *apperrors.ClassifiedError, 1)
	go func() { done <- runner.Run(context.Background()) }()

	select {
	case classified := <-done:
		require.NotNil(t, classified)
		assert.Equal(t, bootstrap.StepAuthenticate, classified.Step)
		assert.ErrorIs(t, classified, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not respect the step timeout")
	}
}

// hangingAuth blocks until its context is cancelled.
type hangingAuth struct{}

func (hangingAuth) Login(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// TestRun_FailureEmitsSingleErrorLine verifies the one-failure-one-diagnostic
// contract: the runner does not duplicate the classifier's ERROR line.
func TestRun_FailureEmitsSingleErrorLine(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	classifier := apperrors.NewErrorClassifier(logger)

	auth := &fakeAuth{err: apperrors.ErrAuthentication}
	runner := bootstrap.NewRunner(auth, &fakeSource{}, &fakeDecryptor{}, out, 5*time.Second, classifier, logger)

	classified := runner.Run(context.Background())
	require.NotNil(t, classified)
	classifier.LogFailure(context.Background(), classified)

	assert.Equal(t, 1, strings.Count(buf.String(), "level=ERROR"))
}

// TestRun_UnknownErrorClassifiesInternal covers errors outside the taxonomy.
func TestRun_UnknownErrorClassifiesInternal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config")
	auth := &fakeAuth{err: errors.New("boom")}
	runner := newRunner(t, auth, &fakeSource{}, &fakeDecryptor{}, out)

	classified := runner.Run(context.Background())
	require.NotNil(t, classified)
	assert.Equal(t, apperrors.ClassInternal, classified.Class)
	assert.Equal(t, apperrors.ExitInternal, classified.ExitCode())
}
