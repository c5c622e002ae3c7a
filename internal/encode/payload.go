package encode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"crm-sync/internal/tabledesc"
)

// Payload accumulates encoded rows for one run. Rows are spooled to memory, or to a
// temporary file when a spool directory is given, and replayed by Open once extraction
// has finished.
type Payload struct {
	desc   *tabledesc.Descriptor
	header []string
	file   *os.File
	buf    *bytes.Buffer
	w      *bufio.Writer
	rows   int
	cols   []string
}

func NewPayload(desc *tabledesc.Descriptor, spoolDir string) (*Payload, error) {
	p := &Payload{
		desc:   desc,
		header: append([]string(nil), desc.SyncFields...),
		cols:   make([]string, len(desc.SyncFields)),
	}

	var sink io.Writer
	if spoolDir == "" {
		p.buf = &bytes.Buffer{}
		sink = p.buf
	} else {
		f, err := os.CreateTemp(spoolDir, "crm-sync-"+desc.Name+"-*.csv")
		if err != nil {
			return nil, fmt.Errorf("failed to create spool file: %w", err)
		}
		p.file = f
		sink = f
	}

	p.w = bufio.NewWriter(sink)
	if _, err := p.w.WriteString(strings.Join(p.header, separator) + "\n"); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Append encodes one record in sync field order.
func (p *Payload) Append(record map[string]any) error {
	for i, name := range p.header {
		p.cols[i] = Encode(p.desc.Field(name).Type, record[name])
	}
	if _, err := p.w.WriteString(strings.Join(p.cols, separator) + "\n"); err != nil {
		return fmt.Errorf("failed to spool row: %w", err)
	}
	p.rows++
	return nil
}

// Header returns the column names in load order.
func (p *Payload) Header() []string {
	return p.header
}

func (p *Payload) Rows() int {
	return p.rows
}

// Open flushes pending rows and returns a reader over the header line and every row.
func (p *Payload) Open() (io.Reader, error) {
	if err := p.w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush spool: %w", err)
	}
	if p.buf != nil {
		return bytes.NewReader(p.buf.Bytes()), nil
	}
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind spool file: %w", err)
	}
	return bufio.NewReader(p.file), nil
}

// Close releases the spool. It is safe to call more than once.
func (p *Payload) Close() error {
	if p.file == nil {
		return nil
	}
	name := p.file.Name()
	err := p.file.Close()
	p.file = nil
	return errors.Join(err, os.Remove(name))
}
