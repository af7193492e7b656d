// Package logfile provides access to the suite log files that modules
// append to. Logs grow without bound, so reads are tail-capped.
package logfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReadTail returns up to the last maxBytes of the file at path,
// aligned to the next full line when the cap truncates mid-line.
// maxBytes <= 0 reads the whole file.
func ReadTail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		data, err := io.ReadAll(f)
		return string(data), err
	}

	if _, err := f.Seek(fi.Size()-maxBytes, io.SeekStart); err != nil {
		return "", err
	}
	br := bufio.NewReader(f)
	if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
		return "", err
	}
	data, err := io.ReadAll(br)
	return string(data), err
}

// Append writes content to the end of the file at path, creating it
// and its directory as needed. A trailing newline is added when the
// content lacks one.
func Append(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, err = f.WriteString(content)
	return err
}

// ModTime returns the file's last modification time.
func ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// DownloadName builds the filename offered when a module's log is
// downloaded, e.g. "t1_20250110.log".
func DownloadName(module string, at time.Time) string {
	return SanitizeSegment(module) + "_" + at.Format("20060102") + ".log"
}

// SanitizeSegment makes a value safe for use as a path segment.
func SanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, ch := range value {
		isLower := ch >= 'a' && ch <= 'z'
		isUpper := ch >= 'A' && ch <= 'Z'
		isDigit := ch >= '0' && ch <= '9'
		if isLower || isUpper || isDigit || ch == '-' || ch == '_' || ch == '.' {
			b.WriteRune(ch)
			continue
		}
		b.WriteByte('_')
	}
	result := strings.Trim(b.String(), "._")
	if result == "" {
		return "unknown"
	}
	return result
}
