// Package stream couples a duplex byte source/sink with a
// transformer.Transformer (spec §2 "Stream adapter", §5 concurrency
// model). Two variants share the same semantics: Blocking drives the
// transformer synchronously on the caller's goroutine; NonBlocking runs
// its own read/write goroutines and exposes a fragment channel, grounded
// on the teacher's network/client.go TCPClient (readLoop/writeLoop
// goroutines, buffered output channel, atomic byte counters) generalized
// from telnet-Parser-plus-OutputBuffer to the full Transformer.
package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/term"

	"github.com/drake/mudtransform/fragment"
	"github.com/drake/mudtransform/internal/buffer"
	"github.com/drake/mudtransform/telnet"
	"github.com/drake/mudtransform/transformer"
)

// Stats mirrors the teacher's network.Stats shape, generalized to the
// fragment/input queues and compression/MXP state this module tracks
// instead of line counts (spec §5 "Buffer ownership").
type Stats struct {
	Connected        bool
	BytesRead        uint64
	BytesWritten     uint64
	FragmentsEmitted uint64
	LastReadTime     time.Time
	FragmentQueueLen int
	FragmentQueueCap int
	InputQueueLen    int
	InputQueueCap    int
	Compressed       bool
	MxpActive        bool
}

// StatsProvider is satisfied by both adapter variants; debug.Monitor
// depends only on this, not on either concrete type.
type StatsProvider interface {
	Stats() Stats
}

// Blocking is the simplest adapter variant (spec §2, §5): it owns a
// net.Conn and a Transformer and drives them synchronously — one socket
// read, one Receive call, one drain, one flush of the InputBuffer to the
// socket, repeated by the caller. No goroutines, no channels; suited to
// a single-threaded CLI driver like cmd/muddemo.
type Blocking struct {
	Conn        net.Conn
	Transformer *transformer.Transformer

	scratch []byte
	stats   Stats
	mu      sync.Mutex
}

// NewBlocking wraps an already-dialed connection and transformer.
func NewBlocking(conn net.Conn, tr *transformer.Transformer) *Blocking {
	return &Blocking{Conn: conn, Transformer: tr, scratch: make([]byte, 8192)}
}

// ReadFragments performs one socket read and feeds it through the
// Transformer, returning the fragments produced (spec §5 ordering
// guarantee 1: fragments emitted in the order bytes arrive). It blocks
// until the socket has data, an error occurs, or the connection closes.
func (b *Blocking) ReadFragments() ([]fragment.Fragment, error) {
	buf := make([]byte, 4096)
	n, err := b.Conn.Read(buf)
	if n > 0 {
		b.mu.Lock()
		b.stats.BytesRead += uint64(n)
		b.stats.LastReadTime = time.Now()
		b.mu.Unlock()

		if rerr := b.Transformer.Receive(buf[:n], b.scratch); rerr != nil {
			return nil, fmt.Errorf("stream: receive: %w", rerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return b.drainAndFlush()
}

// drainAndFlush pulls complete fragments out of the Transformer and
// writes any queued negotiation/identify bytes back to the socket —
// spec §5 ordering guarantee 2: "the adapter flushes the input buffer to
// the socket after each receive call returns".
func (b *Blocking) drainAndFlush() ([]fragment.Fragment, error) {
	frags := b.Transformer.DrainComplete()
	if err := b.flushInput(); err != nil {
		return frags, err
	}
	return frags, nil
}

func (b *Blocking) flushInput() error {
	h := b.Transformer.DrainInput()
	if h == nil {
		return nil
	}
	defer h.Close()

	data := h.Bytes()
	b.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, err := b.Conn.Write(data)
	b.Conn.SetWriteDeadline(time.Time{})
	h.Advance(n)
	if n > 0 {
		b.mu.Lock()
		b.stats.BytesWritten += uint64(n)
		b.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("stream: writing input buffer: %w", err)
	}
	return nil
}

// Send writes user input directly to the socket (spec §6: "client user
// input is written directly by the adapter"), appending the network
// line terminator.
func (b *Blocking) Send(line string) error {
	b.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, err := b.Conn.Write([]byte(line + "\r\n"))
	b.Conn.SetWriteDeadline(time.Time{})
	if n > 0 {
		b.mu.Lock()
		b.stats.BytesWritten += uint64(n)
		b.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("stream: send: %w", err)
	}
	return nil
}

// SendWindowSize answers a NAWS request (fragment.TelnetNaws) with the
// given dimensions; QueryAndSendWindowSize reads them from a live TTY via
// charmbracelet/x/term first (SPEC_FULL §2 domain-stack). The
// Transformer itself never does this: the negotiator only emits the
// request event (telnet §4.7 "On DO... emit NAWS request fragment"), the
// actual answer carries client-local info the transformer has no way to
// know, matching spec §6 "client user input is written directly by the
// adapter".
func (b *Blocking) SendWindowSize(width, height int) error {
	payload := nawsPayload(width, height)
	b.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, err := b.Conn.Write(payload)
	b.Conn.SetWriteDeadline(time.Time{})
	if n > 0 {
		b.mu.Lock()
		b.stats.BytesWritten += uint64(n)
		b.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("stream: sending NAWS: %w", err)
	}
	return nil
}

// QueryAndSendWindowSize reads the real terminal size behind fd (usually
// os.Stdout.Fd()) via term.GetSize and forwards it as a NAWS reply.
func (b *Blocking) QueryAndSendWindowSize(fd uintptr) error {
	w, h, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("stream: querying terminal size: %w", err)
	}
	return b.SendWindowSize(w, h)
}

func nawsPayload(width, height int) []byte {
	buf := []byte{telnet.CmdIAC, telnet.CmdSB, telnet.OptNAWS}
	buf = appendNawsWord(buf, width)
	buf = appendNawsWord(buf, height)
	buf = append(buf, telnet.CmdIAC, telnet.CmdSE)
	return buf
}

// appendNawsWord appends a 16-bit big-endian dimension, doubling any
// byte that equals IAC (0xFF) per telnet transparency rules.
func appendNawsWord(buf []byte, n int) []byte {
	hi, lo := byte(n>>8), byte(n)
	for _, b := range [2]byte{hi, lo} {
		buf = append(buf, b)
		if b == telnet.CmdIAC {
			buf = append(buf, telnet.CmdIAC)
		}
	}
	return buf
}

// Stats reports a point-in-time snapshot, filling in what the Blocking
// variant itself tracks and deferring fragment/input queue depth (it has
// none — there is no goroutine buffering to report) and Compressed/
// MxpActive to a caller that has access to the Transformer's config.
func (b *Blocking) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Connected = b.Conn != nil
	return s
}

// Close releases the underlying connection.
func (b *Blocking) Close() error {
	if b.Conn == nil {
		return nil
	}
	return b.Conn.Close()
}

// NonBlocking is the goroutine-driven adapter variant (spec §2, §5): a
// read loop and a write loop each await at most one blocking point per
// iteration (a socket read, or a queued send write), and fragments reach
// the caller through a channel built on internal/buffer.Unbounded, which
// never blocks the read loop and drops the oldest pending fragment beyond
// its hard limit — grounded on the teacher's
// TCPClient.readLoop/writeLoop split.
type NonBlocking struct {
	conn        net.Conn
	tr          *transformer.Transformer
	fragmentIn  chan<- fragment.Fragment
	fragmentOut <-chan fragment.Fragment
	sendQueue   chan string
	done        chan struct{}
	closeOnce   sync.Once

	scratch []byte

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	fragCount    atomic.Uint64
	lastReadNano atomic.Int64
	connected    atomic.Bool
}

// Dial opens a TCP connection and starts the non-blocking adapter's read
// and write loops against it.
func Dial(ctx context.Context, address string, tr *transformer.Transformer) (*NonBlocking, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", address, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}
	return NewNonBlocking(conn, tr), nil
}

// NewNonBlocking wraps an already-established connection.
func NewNonBlocking(conn net.Conn, tr *transformer.Transformer) *NonBlocking {
	in, out := buffer.Unbounded[fragment.Fragment](256, 50000)
	nb := &NonBlocking{
		conn:        conn,
		tr:          tr,
		fragmentIn:  in,
		fragmentOut: out,
		sendQueue:   make(chan string, 256),
		done:        make(chan struct{}),
		scratch:     make([]byte, 8192),
	}
	nb.connected.Store(true)
	go nb.readLoop()
	go nb.writeLoop()
	return nb
}

// Output returns the channel of fragments the read loop produces.
func (nb *NonBlocking) Output() <-chan fragment.Fragment { return nb.fragmentOut }

// Send queues a line of user input to be written with a trailing CRLF.
// Returns an error immediately if the connection is already closed or
// the send buffer is full.
func (nb *NonBlocking) Send(line string) error {
	select {
	case <-nb.done:
		return fmt.Errorf("stream: not connected")
	default:
	}
	select {
	case nb.sendQueue <- line:
		return nil
	default:
		return fmt.Errorf("stream: send buffer full")
	}
}

// SendWindowSize answers a NAWS request (fragment.TelnetNaws) with the
// given dimensions, written directly to the connection from the caller's
// goroutine rather than through the write loop.
func (nb *NonBlocking) SendWindowSize(width, height int) error {
	payload := nawsPayload(width, height)
	nb.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, err := nb.conn.Write(payload)
	nb.conn.SetWriteDeadline(time.Time{})
	if n > 0 {
		nb.bytesWritten.Add(uint64(n))
	}
	if err != nil {
		return fmt.Errorf("stream: sending NAWS: %w", err)
	}
	return nil
}

// QueryAndSendWindowSize reads the real terminal size behind fd via
// term.GetSize and forwards it as a NAWS reply.
func (nb *NonBlocking) QueryAndSendWindowSize(fd uintptr) error {
	w, h, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("stream: querying terminal size: %w", err)
	}
	return nb.SendWindowSize(w, h)
}

// Close stops the read/write loops and closes the connection.
func (nb *NonBlocking) Close() error {
	nb.closeOnce.Do(func() { close(nb.done) })
	nb.connected.Store(false)
	return nb.conn.Close()
}

func (nb *NonBlocking) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := nb.conn.Read(buf)
		if n > 0 {
			nb.bytesRead.Add(uint64(n))
			nb.lastReadNano.Store(time.Now().UnixNano())

			if rerr := nb.tr.Receive(buf[:n], nb.scratch); rerr == nil {
				nb.emitAndFlush()
			}
		}
		if err != nil {
			nb.connected.Store(false)
			nb.closeOnce.Do(func() { close(nb.done) })
			return
		}
	}
}

// emitAndFlush drains complete fragments to the output channel and
// writes any queued negotiation bytes back to the socket, preserving
// the call/response ordering spec §5 guarantee 2 requires.
func (nb *NonBlocking) emitAndFlush() {
	for _, f := range nb.tr.DrainComplete() {
		nb.fragCount.Add(1)
		select {
		case nb.fragmentIn <- f:
		case <-nb.done:
			return
		}
	}
	if h := nb.tr.DrainInput(); h != nil {
		data := h.Bytes()
		nb.conn.SetWriteDeadline(time.Now().Add(time.Second))
		n, werr := nb.conn.Write(data)
		nb.conn.SetWriteDeadline(time.Time{})
		h.Advance(n)
		h.Close()
		if n > 0 {
			nb.bytesWritten.Add(uint64(n))
		}
		_ = werr
	}
}

func (nb *NonBlocking) writeLoop() {
	for {
		select {
		case <-nb.done:
			return
		case line := <-nb.sendQueue:
			nb.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			n, err := nb.conn.Write([]byte(line + "\r\n"))
			nb.conn.SetWriteDeadline(time.Time{})
			if n > 0 {
				nb.bytesWritten.Add(uint64(n))
			}
			if err != nil {
				nb.conn.Close()
				return
			}
		}
	}
}

// Stats reports a lock-free snapshot (spec §5 "Buffer ownership").
func (nb *NonBlocking) Stats() Stats {
	lastRead := time.Unix(0, nb.lastReadNano.Load())
	if nb.lastReadNano.Load() == 0 {
		lastRead = time.Time{}
	}
	return Stats{
		Connected:        nb.connected.Load(),
		BytesRead:        nb.bytesRead.Load(),
		BytesWritten:     nb.bytesWritten.Load(),
		FragmentsEmitted: nb.fragCount.Load(),
		LastReadTime:     lastRead,
		FragmentQueueLen: len(nb.fragmentOut),
		FragmentQueueCap: cap(nb.fragmentOut),
		InputQueueLen:    len(nb.sendQueue),
		InputQueueCap:    cap(nb.sendQueue),
	}
}
