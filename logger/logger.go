// Package logger provides the application's leveled loggers.
package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ------------------- global loggers -------------------

var (
	Info  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	Warn  = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	Error = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	Debug = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
)

// Init points every logger at stdout and, when dir is not empty, a
// timestamped file inside dir. In production Debug output is discarded.
func Init(env, dir string) error {
	var out io.Writer = os.Stdout
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		name := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".log")
		file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec
		if err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	Info.SetOutput(out)
	Warn.SetOutput(out)
	Error.SetOutput(out)
	Debug.SetOutput(out)

	if env == "production" {
		Debug.SetOutput(io.Discard)
	}
	return nil
}

// Silence discards everything. Used by tests.
func Silence() {
	for _, l := range []*log.Logger{Info, Warn, Error, Debug} {
		l.SetOutput(io.Discard)
	}
}
