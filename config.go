package sluice

import (
	"fmt"
	"runtime"
	"time"

	"sluice.dev/go/sluice/obs"
)

const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 8080
	DefaultChunkSize = 16 << 20 // max frame size when re-chunking bodies
	DefaultInBuf     = 100      // BodyChannel capacity, in chunks
	DefaultBacklog   = 1024
	DefaultWorkers   = 64
	DefaultQueue     = 1024

	// maxHeaderBytes bounds a single head line; heads beyond it are a 431.
	maxHeaderBytes = 8 << 10
)

// Config carries every recognized server option. The zero value is usable:
// New fills defaults and rejects anything invalid with a ConfigError before
// the server exists.
type Config struct {
	// Host and Port form the bind address. Host defaults to loopback.
	Host string
	Port int

	// ChunkSize caps the size of a single body frame when the engine
	// re-chunks a streamed body (io.Reader bodies and inbound reads).
	ChunkSize int

	// InBuf is the BodyChannel capacity per request, in chunks. When a
	// request body fills it, transport reads pause until the handler
	// drains; see BodyChannel.
	InBuf int

	// Backlog is passed to listen(2) where the platform listener supports
	// it; elsewhere the OS default applies.
	Backlog int

	// AggregateLength is reserved for a future aggregation mode and is not
	// used by the streaming path. It is validated so configurations do not
	// silently carry garbage.
	AggregateLength int

	// Executor runs handlers and response drains. Nil means the server
	// owns a Pool of Workers workers behind a Queue-slot queue and closes
	// it on shutdown. A provided Executor is never closed by the server.
	Executor Executor
	Workers  int
	Queue    int

	// DisableURing forces the portable net.Conn backend over the
	// OS-optimized io_uring backend on platforms that have one.
	DisableURing bool

	// LoopThreads sizes the io_uring instance pool (the reactor thread
	// count). Defaults to GOMAXPROCS. Ignored by the portable backend,
	// which serializes each connection on its own goroutine instead.
	LoopThreads int

	// KeepAlive enables connection reuse after a cleanly-framed exchange.
	// Off by default: the engine's observed behavior is one exchange per
	// connection, and this knob exists to make that explicit.
	KeepAlive bool

	// I/O deadlines, all optional. There is no handler execution timeout;
	// handlers compose their own via context.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// TLS, when set, is used to build the secure-channel factory at
	// construction time. Malformed material fails New, never a connection.
	TLS *TLSConfig

	Logger obs.Logger
	Meter  obs.Meter
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Host == "" {
		out.Host = DefaultHost
	}
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.InBuf == 0 {
		out.InBuf = DefaultInBuf
	}
	if out.Backlog == 0 {
		out.Backlog = DefaultBacklog
	}
	if out.Workers == 0 {
		out.Workers = DefaultWorkers
	}
	if out.Queue == 0 {
		out.Queue = DefaultQueue
	}
	if out.LoopThreads == 0 {
		out.LoopThreads = runtime.GOMAXPROCS(0)
	}
	if out.Logger == nil {
		out.Logger = obs.NopLogger{}
	}
	if out.Meter == nil {
		out.Meter = obs.NopMeter{}
	}
	return out
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Option: "Port", Reason: fmt.Sprintf("%d out of range", c.Port)}
	}
	if c.ChunkSize < 0 {
		return &ConfigError{Option: "ChunkSize", Reason: "must be positive"}
	}
	if c.InBuf < 0 {
		return &ConfigError{Option: "InBuf", Reason: "must be positive"}
	}
	if c.Backlog < 0 {
		return &ConfigError{Option: "Backlog", Reason: "must be positive"}
	}
	if c.AggregateLength < 0 {
		return &ConfigError{Option: "AggregateLength", Reason: "must be non-negative"}
	}
	if c.Workers < 0 || c.Queue < 0 {
		return &ConfigError{Option: "Workers", Reason: "pool sizing must be positive"}
	}
	if c.LoopThreads < 0 {
		return &ConfigError{Option: "LoopThreads", Reason: "must be positive"}
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"ReadHeaderTimeout", c.ReadHeaderTimeout},
		{"ReadTimeout", c.ReadTimeout},
		{"WriteTimeout", c.WriteTimeout},
		{"IdleTimeout", c.IdleTimeout},
	} {
		if d.v < 0 {
			return &ConfigError{Option: d.name, Reason: "must be non-negative"}
		}
	}
	return nil
}

// inFrameSize is the buffer size for one inbound body read: frames never
// exceed ChunkSize, but reads are issued in smaller slices so a slow
// consumer does not pin multi-megabyte buffers per slot.
func (c *Config) inFrameSize() int {
	const readSlice = 32 << 10
	if c.ChunkSize > 0 && c.ChunkSize < readSlice {
		return c.ChunkSize
	}
	return readSlice
}

// outFrameSize caps one outbound frame when draining an io.Reader body.
func (c *Config) outFrameSize() int {
	const writeSlice = 64 << 10
	if c.ChunkSize > 0 && c.ChunkSize < writeSlice {
		return c.ChunkSize
	}
	return writeSlice
}
