package vmhost

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lvzrr/lvjb/internal/proc"
)

//go:embed LvjbLauncher.java
var launcherSource []byte

const (
	launcherFile   = "LvjbLauncher.java"
	launcherBanner = "lvjb-launcher"
)

// Request opcodes and reply statuses understood by LvjbLauncher.java.
const (
	opRun int32 = 1

	statusOK            int32 = 0
	statusClassNotFound int32 = 1
	statusNoEntryPoint  int32 = 2
	statusException     int32 = 3
)

// maxFrameString bounds a single string read from the launcher.
const maxFrameString = 1 << 20

var (
	startTimeout = 30 * time.Second
	stopTimeout  = 5 * time.Second
)

func init() {
	Register("jvm", newJVMRuntime)
}

// jvmRuntime is one long-lived java process running the launcher in
// source-file mode. Each attached Context is its own loopback connection,
// served by its own Java thread.
type jvmRuntime struct {
	p     *proc.Process
	stdin io.Closer
	addr  string
	dir   string
}

func newJVMRuntime(opts Options) (Runtime, error) {
	if opts.Java == "" {
		opts.Java = "java"
	}
	starter, ok := opts.Runner.(proc.Starter)
	if !ok {
		starter = proc.NewExecRunner()
	}

	dir, err := os.MkdirTemp("", "lvjb-launcher-")
	if err != nil {
		return nil, err
	}
	src := filepath.Join(dir, launcherFile)
	if err := os.WriteFile(src, launcherSource, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	argv := append([]string{}, opts.Flags...)
	if opts.Classpath != "" {
		argv = append(argv, "-cp", opts.Classpath)
	}
	argv = append(argv, src)

	// The launcher exits when its stdin closes, including when this
	// process dies without calling Destroy.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	hs := newHandshake(opts.Stdout)
	p, err := starter.Start(proc.Command{
		Path:   opts.Java,
		Args:   argv,
		Dir:    opts.Dir,
		Stdin:  stdinR,
		Stdout: hs,
		Stderr: opts.Stderr,
	})
	_ = stdinR.Close()
	if err != nil {
		_ = stdinW.Close()
		_ = os.RemoveAll(dir)
		return nil, err
	}

	rt := &jvmRuntime{p: p, stdin: stdinW, dir: dir}
	timer := time.NewTimer(startTimeout)
	defer timer.Stop()
	select {
	case addr := <-hs.addr:
		if addr == "" {
			rt.kill()
			return nil, fmt.Errorf("%s: launcher did not announce an address", opts.Java)
		}
		rt.addr = addr
		return rt, nil
	case <-p.Done():
		err := p.Wait()
		rt.kill()
		return nil, fmt.Errorf("%s exited before the launcher was ready: %v", opts.Java, err)
	case <-timer.C:
		rt.kill()
		return nil, fmt.Errorf("%s: launcher not ready after %s", opts.Java, startTimeout)
	}
}

func (r *jvmRuntime) Attach() (Context, error) {
	conn, err := net.Dial("tcp", r.addr)
	if err != nil {
		return nil, err
	}
	return &jvmContext{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}, nil
}

// Destroy closes the launcher's stdin, which flushes its streams and halts
// the JVM, and kills it if it does not exit in time.
func (r *jvmRuntime) Destroy() error {
	defer os.RemoveAll(r.dir)
	_ = r.stdin.Close()
	select {
	case <-r.p.Done():
		return nil
	case <-time.After(stopTimeout):
		return r.p.Kill()
	}
}

func (r *jvmRuntime) kill() {
	_ = r.stdin.Close()
	_ = r.p.Kill()
	_ = os.RemoveAll(r.dir)
}

type jvmContext struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func (c *jvmContext) Detach() error {
	return c.conn.Close()
}

// CallMain sends one run request and waits for its reply. Cancelling ctx
// abandons the call; the program keeps running in the JVM until it ends or
// the runtime is destroyed.
func (c *jvmContext) CallMain(ctx context.Context, class string, args []string) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	putInt(c.w, opRun)
	putString(c.w, class)
	putInt(c.w, int32(len(args)))
	for _, a := range args {
		putString(c.w, a)
	}
	err := c.w.Flush()
	var (
		status int32
		msg    string
	)
	if err == nil {
		status, err = readInt(c.r)
	}
	if err == nil {
		msg, err = readString(c.r)
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%s: %w", class, cerr)
		}
		return &InvokeError{Kind: ErrAttachFailure, Class: class, Err: fmt.Errorf("launcher connection: %w", err)}
	}

	switch status {
	case statusOK:
		return nil
	case statusClassNotFound:
		return &InvokeError{Kind: ErrClassNotFound, Class: class}
	case statusNoEntryPoint:
		return &InvokeError{Kind: ErrEntryPointMissing, Class: class}
	case statusException:
		return &InvokeError{Kind: ErrUncaughtException, Class: class, Msg: msg}
	default:
		return &InvokeError{Kind: ErrAttachFailure, Class: class, Err: fmt.Errorf("unknown launcher status %d", status)}
	}
}

// Write errors stick to the bufio.Writer and surface from Flush.
func putInt(w *bufio.Writer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, _ = w.Write(b[:])
}

func putString(w *bufio.Writer, s string) {
	putInt(w, int32(len(s)))
	_, _ = w.WriteString(s)
}

func readInt(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxFrameString {
		return "", fmt.Errorf("string length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// handshake takes the launcher's first stdout line, which announces its
// address, and passes everything after it through to out.
type handshake struct {
	out  io.Writer
	addr chan string

	mu   sync.Mutex
	line []byte
	done bool
}

func newHandshake(out io.Writer) *handshake {
	return &handshake{out: out, addr: make(chan string, 1)}
}

// Write never fails, so a broken sink cannot stall the launcher's output.
func (h *handshake) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rest := p
	if !h.done {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			h.line = append(h.line, p...)
			return len(p), nil
		}
		h.line = append(h.line, p[:i]...)
		h.done = true
		h.addr <- parseBanner(string(h.line))
		rest = p[i+1:]
	}
	if h.out != nil && len(rest) > 0 {
		_, _ = h.out.Write(rest)
	}
	return len(p), nil
}

// parseBanner turns "lvjb-launcher <host> <port>" into a dial address, or ""
// when the line is anything else.
func parseBanner(line string) string {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != launcherBanner {
		return ""
	}
	return net.JoinHostPort(f[1], f[2])
}
