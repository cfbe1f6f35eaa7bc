package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Logger appends stamped lines to a single log file. A second read-only
// handle serves quick previews without disturbing the write offset.
type Logger struct {
	writeFile *os.File
	readFile  *os.File
}

// stamp prefixes a message with the wall-clock time, one line per entry.
func stamp(message string) string {
	return fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), message)
}

// defaultLogPath resolves the fallback log location: the standard layout
// rooted next to the running executable, or a temp directory when even the
// executable path is unknown.
func defaultLogPath() string {
	exe, err := os.Executable()
	if err != nil {
		return NewPaths(filepath.Join(os.TempDir(), "fleetmon")).LogFile()
	}
	if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && resolved != "" {
		exe = resolved
	}
	return NewPaths(filepath.Dir(exe)).LogFile()
}

// writeToDefaultLog drops a single line into the fallback log, or stderr when
// even that cannot be opened.
func writeToDefaultLog(message string) {
	path := defaultLogPath()
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprint(os.Stderr, stamp(message))
		return
	}
	defer f.Close()
	_, _ = f.WriteString(stamp(message))
}

// NewLogger opens the log file for appending plus a parallel read handle.
// When the file cannot be opened the logger still works, writing to stdout.
func NewLogger(logFile string) *Logger {
	if logFile == "" {
		logFile = defaultLogPath()
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)

	logger := &Logger{}
	var err error
	if logger.writeFile, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		writeToDefaultLog(fmt.Sprintf("Error opening log file (%s): %v", logFile, err))
		return logger
	}
	if logger.readFile, err = os.Open(logFile); err != nil {
		writeToDefaultLog(fmt.Sprintf("Error opening log file for reading (%s): %v", logFile, err))
	}
	return logger
}

// Write appends one stamped message, falling back to stdout with no file.
func (l *Logger) Write(message string) {
	line := stamp(message)
	if l.writeFile == nil {
		fmt.Print(line)
		return
	}
	l.writeFile.WriteString(line)
	l.writeFile.Sync()
}

// Read returns up to 1 KiB from the current read offset for quick previews.
func (l *Logger) Read() string {
	if l.readFile == nil {
		return ""
	}
	buf := make([]byte, 1024)
	n, _ := l.readFile.Read(buf)
	return string(buf[:n])
}

// Close releases both file handles.
func (l *Logger) Close() {
	if l.writeFile != nil {
		l.writeFile.Close()
	}
	if l.readFile != nil {
		l.readFile.Close()
	}
}

// File returns the underlying write handle when one is open.
func (l *Logger) File() *os.File {
	if l == nil {
		return nil
	}
	return l.writeFile
}
