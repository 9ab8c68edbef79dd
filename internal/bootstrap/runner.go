// Package bootstrap orchestrates the secret-provisioning sequence: acquire a
// credential, fetch the encrypted config blob, decrypt it, and atomically
// write the plaintext for the main process. It runs once and exits; the
// container restart policy owns retries.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	"github.com/vitudev/secretboot/internal/source"
	"github.com/vitudev/secretboot/pkg/memory"
)

// Authenticator acquires the credential the decryptor will use. For the
// Vault backend this is the Kubernetes auth login; SDK-credentialed backends
// make it a no-op.
type Authenticator interface {
	Login(ctx context.Context) error
}

// Decryptor turns an encrypted config envelope back into plaintext.
type Decryptor interface {
	Decrypt(ctx context.Context, env *blob.Envelope) ([]byte, error)
}

// State tracks the run through its sequential steps. A run never resumes
// mid-way: every invocation starts from StateStart.
type State int

const (
	StateStart State = iota
	StateTokenAcquired
	StateConfigDecrypted
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTokenAcquired:
		return "token_acquired"
	case StateConfigDecrypted:
		return "config_decrypted"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Step names used in failure diagnostics.
const (
	StepAuthenticate = "authenticate"
	StepFetchBlob    = "fetch-blob"
	StepDecrypt      = "decrypt"
	StepWriteOutput  = "write-output"
)

type Runner struct {
	auth        Authenticator
	src         source.BlobSource
	dec         Decryptor
	outputPath  string
	stepTimeout time.Duration
	classifier  *apperrors.ErrorClassifier
	logger      *slog.Logger

	state State
}

func NewRunner(
	auth Authenticator,
	src source.BlobSource,
	dec Decryptor,
	outputPath string,
	stepTimeout time.Duration,
	classifier *apperrors.ErrorClassifier,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		auth:        auth,
		src:         src,
		dec:         dec,
		outputPath:  outputPath,
		stepTimeout: stepTimeout,
		classifier:  classifier,
		logger:      logger,
		state:       StateStart,
	}
}

// stepContext bounds a single step. A zero timeout disables the bound.
func (r *Runner) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.stepTimeout)
}

// State returns the state the last run ended in.
func (r *Runner) State() State {
	return r.state
}

// Run executes the bootstrap sequence. Decryption never starts before
// authentication succeeds, and the output file is only ever replaced whole:
// a failed run leaves the previous config untouched. The returned error is
// nil on success and classified otherwise.
func (r *Runner) Run(ctx context.Context) *apperrors.ClassifiedError {
	runID := uuid.New().String()
	logger := r.logger.With("run_id", runID)

	r.state = StateStart
	logger.InfoContext(ctx, "bootstrap starting", "state", r.state.String())

	loginCtx, cancelLogin := r.stepContext(ctx)
	err := r.auth.Login(loginCtx)
	cancelLogin()
	if err != nil {
		return r.fail(ctx, logger, err, StepAuthenticate)
	}
	r.state = StateTokenAcquired
	logger.InfoContext(ctx, "credential acquired", "state", r.state.String())

	fetchCtx, cancelFetch := r.stepContext(ctx)
	env, err := r.src.Fetch(fetchCtx)
	cancelFetch()
	if err != nil {
		return r.fail(ctx, logger, err, StepFetchBlob)
	}

	decryptCtx, cancelDecrypt := r.stepContext(ctx)
	plaintext, err := r.dec.Decrypt(decryptCtx, env)
	cancelDecrypt()
	if err != nil {
		return r.fail(ctx, logger, err, StepDecrypt)
	}
	defer memory.Wipe(plaintext)

	r.state = StateConfigDecrypted
	logger.InfoContext(ctx, "config decrypted", "state", r.state.String(), "bytes", len(plaintext))

	if err := writeAtomic(r.outputPath, plaintext); err != nil {
		return r.fail(ctx, logger, err, StepWriteOutput)
	}

	r.state = StateDone
	logger.InfoContext(ctx, "bootstrap complete", "state", r.state.String(), "output", r.outputPath)

	return nil
}

// fail records the terminal state and classifies the error. The single ERROR
// diagnostic is emitted by the classifier's LogFailure at exit.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, err error, step string) *apperrors.ClassifiedError {
	r.state = StateFailed
	classified := r.classifier.Classify(err, step)
	logger.DebugContext(ctx, "bootstrap aborted", "state", r.state.String(), "step", step)
	return classified
}
