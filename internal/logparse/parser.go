// Package logparse extracts test execution records from raw suite log
// files. Logs are append-only and accumulate entries from many runs;
// the parser scans line by line, carrying the most recently seen
// timestamp and elapsed-time annotation forward onto result lines.
package logparse

import (
	"bufio"
	"io"
	"os"
	"time"
)

// Resolver maps a short test name found in a log to its canonical
// name. A nil Resolver leaves names as written.
type Resolver func(name string) (string, bool)

// Result holds everything a single parse pass produced.
type Result struct {
	Records      []Record
	LinesRead    int
	LinesSkipped int
}

// Parser turns log text into Records. The zero value is not usable;
// construct with New.
type Parser struct {
	resolve  Resolver
	fallback time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithResolver installs a short-name resolver.
func WithResolver(r Resolver) Option {
	return func(p *Parser) { p.resolve = r }
}

// WithFallbackTime sets the timestamp used for result lines that
// appear before any "Start:" line. Typically the log file's mtime.
func WithFallbackTime(t time.Time) Option {
	return func(p *Parser) { p.fallback = t }
}

func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse scans r to the end and returns the records found. Lines that
// resemble test or timestamp lines but match no known format are
// counted in LinesSkipped, never returned as errors.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	res := &Result{}
	var (
		lastStart   = p.fallback
		lastElapsed string
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		res.LinesRead++

		// Results first: some log generations put the elapsed
		// annotation on the result line itself.
		if name, status, ok := matchResult(line); ok {
			if p.resolve != nil {
				if full, found := p.resolve(name); found {
					name = full
				}
			}
			elapsed := lastElapsed
			if v, ok := matchElapsed(line); ok {
				elapsed = v
			}
			res.Records = append(res.Records, Record{
				TestName:    name,
				Status:      status,
				Timestamp:   lastStart,
				RunningTime: elapsed,
			})
			lastElapsed = ""
			continue
		}
		if t, ok := matchTimestamp(line); ok {
			lastStart = t
			continue
		}
		if v, ok := matchElapsed(line); ok {
			lastElapsed = v
			continue
		}
		if looksRelevant(line) {
			res.LinesSkipped++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ParseFile parses at most the last maxTail bytes of the file at path.
// maxTail <= 0 reads the whole file. The file's mtime is used as the
// fallback timestamp for records with no preceding "Start:" line.
func (p *Parser) ParseFile(path string, maxTail int64) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if p.fallback.IsZero() {
		p.fallback = fi.ModTime()
	}

	var r io.Reader = f
	if maxTail > 0 && fi.Size() > maxTail {
		if _, err := f.Seek(fi.Size()-maxTail, io.SeekStart); err != nil {
			return nil, err
		}
		// Drop the partial first line after seeking mid-file.
		br := bufio.NewReader(f)
		if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
			return nil, err
		}
		r = br
	}
	return p.Parse(r)
}
