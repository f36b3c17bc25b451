package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// ErrNotRegistered is returned for commands with no registered program and no fallback.
var ErrNotRegistered = errors.New("command not registered")

// Bus is a CommandBus that runs local programs.
// It follows a strict registry pattern: only allow-listed domain/CommandType pairs execute.
//
// The program receives the CommandMessage as JSON on stdin, and each parameter as
// SAGAFLOW_PARAM_<KEY> in its environment. A zero exit completes the command with
// stdout as the result; JSON output is kept as is, anything else becomes a JSON string.
// A non-zero exit fails it with stderr in the error.
type Bus struct {
	mu       sync.RWMutex
	registry map[string]CommandConfig
	fallback ports.CommandBus
	baseDir  string
}

var _ ports.CommandBus = (*Bus)(nil)

// Option configures the Bus.
type Option func(*Bus)

// WithCommands populates the allow-list from a loaded config.
func WithCommands(cmds []CommandConfig) Option {
	return func(b *Bus) {
		for _, c := range cmds {
			b.registry[c.Key()] = c
		}
	}
}

// WithFallback sends unregistered commands to bus instead of failing them.
func WithFallback(bus ports.CommandBus) Option {
	return func(b *Bus) {
		b.fallback = bus
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(b *Bus) {
		b.baseDir = dir
	}
}

// NewBus creates a process Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{registry: make(map[string]CommandConfig)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a trusted program to the allow-list.
func (b *Bus) Register(domainName, commandType, command string, args ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := CommandConfig{Domain: domainName, CommandType: commandType, Command: command, Args: args}
	b.registry[c.Key()] = c
}

// Send implements ports.CommandBus.
func (b *Bus) Send(ctx context.Context, msg domain.CommandMessage) (json.RawMessage, error) {
	b.mu.RLock()
	proc, ok := b.registry[msg.Domain+"/"+msg.CommandType]
	b.mu.RUnlock()
	if !ok {
		if b.fallback != nil {
			return b.fallback.Send(ctx, msg)
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrNotRegistered, msg.Domain, msg.CommandType)
	}

	input, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	// Parameters travel as environment variables, never as flags.
	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = b.baseDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(), environment(proc, msg)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return result(stdout.Bytes())
}

func environment(proc CommandConfig, msg domain.CommandMessage) []string {
	env := []string{
		"SAGAFLOW_SAGA_ID=" + msg.SagaID,
		"SAGAFLOW_SAGA_NAME=" + msg.SagaName,
		"SAGAFLOW_CORRELATION_ID=" + msg.CorrelationID,
		"SAGAFLOW_STEP_ID=" + msg.StepID,
		"SAGAFLOW_KIND=" + string(msg.Kind),
	}
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range msg.Parameters {
		env = append(env, fmt.Sprintf("SAGAFLOW_PARAM_%s=%s", strings.ToUpper(k), envValue(v)))
	}
	return env
}

// envValue prints primitives as is and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func result(stdout []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	return json.Marshal(string(trimmed))
}
