package persist

import (
	"log"
	"os"
	"time"
)

// Logger is a file-backed logger that brackets its output with STARTUP and
// SHUTDOWN lines, so a log file's boundaries are visible just by scanning
// it.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger opens (or creates) filename for appending and writes a STARTUP
// line.
func NewLogger(filename string) (*Logger, error) {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	l := &Logger{
		Logger: log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC),
		file:   f,
	}
	l.Output(2, "STARTUP: shard core logging has started.")
	return l, nil
}

// Close writes a SHUTDOWN line and closes the underlying file.
func (l *Logger) Close() error {
	l.Output(2, "SHUTDOWN: shard core logging has terminated at "+time.Now().UTC().Format(time.RFC3339)+".")
	return l.file.Close()
}
