package util

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/replisync/pkg/errors"
)

// TestHelper contains methods commonly used during integration tests.
type TestHelper struct {
	// Binary is the path to the replisync binary under test.
	Binary string
}

// NewTestHelper creates a new TestHelper.
func NewTestHelper(binary string) (*TestHelper, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.WithContext(err, "find replisync binary")
	}
	return &TestHelper{Binary: path}, nil
}

// Output is a thread-safe buffer of a command's output.
type Output struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (o *Output) Write(p []byte) (int, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.buf.Write(p)
}

func (o *Output) String() string {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.buf.String()
}

// Start starts the given replisync command. It returns the command's stdout,
// which is collected in the background, a channel for obtaining any errors
// after starting the command, and any errors from starting the command.
// When ctx is cancelled, the command is interrupted and the channel is closed
// once it exits cleanly.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (
	*Output, chan error, error) {

	cmd := exec.Command(helper.Binary, args...)

	stdout := &Output{}
	cmd.Stdout = stdout

	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
				errChan <- errors.WithContext(err, "interrupt")
				return
			}
			if err := <-waitErr; err != nil {
				errChan <- fmt.Errorf("unclean shutdown (%s): stderr: %s", err, stderr)
			}
		case err := <-waitErr:
			errChan <- fmt.Errorf("exited early (%v): stderr: %s", err, stderr)
		}
	}()
	return stdout, errChan, nil
}

// Run runs the given replisync command, and returns its combined output.
func (helper *TestHelper) Run(ctx context.Context, command ...string) ([]byte, error) {
	log.WithField("args", command).Info("Running replisync")
	return exec.CommandContext(ctx, helper.Binary, command...).CombinedOutput()
}

// WaitForOutput blocks until `expOutput` is written to `output`, or `ctx` has
// expired.
func WaitForOutput(ctx context.Context, output *Output, expOutput string) error {
	for {
		if strings.Contains(output.String(), expOutput) {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.New("cancelled")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TestWithRetry runs test until it passes, or ctx expires. The test is rerun
// with exponential backoff, or whenever trigger fires.
func TestWithRetry(ctx context.Context, trigger chan struct{}, test func() bool) bool {
	maxSleepTime := 30 * time.Second
	sleepTime := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		case <-trigger:
		}

		if test() {
			return true
		}
	}
}
