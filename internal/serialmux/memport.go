package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// MemPort is an in-memory SerialPorter. Bytes written by the host collect in
// an output buffer; bytes fed with Feed are what the arm "sends back". It
// backs the package tests and armctl -dev.
type MemPort struct {
	mu    sync.Mutex
	ready *sync.Cond
	in    bytes.Buffer
	out   bytes.Buffer

	// BlockReads makes Read wait for Feed or Close instead of returning io.EOF.
	BlockReads bool
	// ReadError and WriteError fail the next Read or Write once.
	ReadError  error
	WriteError error

	Closed bool
	Writes int
}

func NewMemPort() *MemPort {
	p := &MemPort{}
	p.ready = sync.NewCond(&p.mu)
	return p
}

func (p *MemPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.in.Len() == 0 {
		p.ready.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *MemPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Writes++
	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *MemPort) Close() error {
	p.mu.Lock()
	p.Closed = true
	p.mu.Unlock()
	p.ready.Broadcast()
	return nil
}

// Feed queues bytes for Read.
func (p *MemPort) Feed(b []byte) {
	p.mu.Lock()
	p.in.Write(b)
	p.mu.Unlock()
	p.ready.Broadcast()
}

// Written returns a copy of everything written so far.
func (p *MemPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

// ClearWritten discards the output buffer.
func (p *MemPort) ClearWritten() {
	p.mu.Lock()
	p.out.Reset()
	p.mu.Unlock()
}

// PortOpen records one MemPortFactory.Open call.
type PortOpen struct {
	Path    string
	Options PortOptions
}

// MemPortFactory hands out a fixed port and remembers how it was asked for.
type MemPortFactory struct {
	mu     sync.Mutex
	Port   SerialPorter
	Err    error
	Opened []PortOpen
}

func NewMemPortFactory(port SerialPorter) *MemPortFactory {
	return &MemPortFactory{Port: port}
}

func (f *MemPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opened = append(f.Opened, PortOpen{Path: path, Options: opts})
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}

// LastOpen returns the most recent Open call, or nil.
func (f *MemPortFactory) LastOpen() *PortOpen {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Opened) == 0 {
		return nil
	}
	o := f.Opened[len(f.Opened)-1]
	return &o
}

var (
	_ SerialPorter      = (*MemPort)(nil)
	_ SerialPortFactory = (*MemPortFactory)(nil)
)
