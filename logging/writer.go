package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileMaxSizeMB = 100

//WriterProxy is a lumberjack writer with rotation by time
type WriterProxy struct {
	lWriter       *lumberjack.Logger
	rotateOnClose bool
	ticker        *time.Ticker
	done          chan struct{}
}

//NewWriter returns stdout writer if FileDir is empty or "global"
//otherwise rolling file writer
func NewWriter(config Config) (io.WriteCloser, error) {
	if config.FileDir == "" || config.FileDir == GlobalType {
		return nopCloser{os.Stdout}, nil
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("Error while creating %v logger: %v", config.LoggerName, err)
	}

	return NewRollingWriter(config), nil
}

//NewRollingWriter returns lumberjack based writer which is rotated every config.RotationMin minutes
func NewRollingWriter(config Config) io.WriteCloser {
	fileName := config.LoggerName + ".log"
	if config.ServerName != "" {
		fileName = fmt.Sprintf("%s-%s.log", config.ServerName, config.LoggerName)
	}

	maxSize := logFileMaxSizeMB
	if config.MaxFileSizeMb > 0 {
		maxSize = config.MaxFileSizeMb
	}

	lWriter := &lumberjack.Logger{
		Filename: filepath.Join(config.FileDir, fileName),
		MaxSize:  maxSize,
		Compress: config.Compress,
	}
	if config.MaxBackups > 0 {
		lWriter.MaxBackups = config.MaxBackups
	}

	if config.RotationMin == 0 {
		config.RotationMin = 1440 //24 hours
	}

	wp := &WriterProxy{
		lWriter:       lWriter,
		rotateOnClose: config.RotateOnClose,
		ticker:        time.NewTicker(time.Duration(config.RotationMin) * time.Minute),
		done:          make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-wp.done:
				return
			case <-wp.ticker.C:
				if err := lWriter.Rotate(); err != nil {
					Errorf("Error rotating log file [%s]: %v", lWriter.Filename, err)
				}
			}
		}
	}()

	return wp
}

func (wp *WriterProxy) Write(p []byte) (int, error) {
	return wp.lWriter.Write(p)
}

func (wp *WriterProxy) Close() error {
	wp.ticker.Stop()
	close(wp.done)

	if wp.rotateOnClose {
		if err := wp.lWriter.Rotate(); err != nil {
			Errorf("Error rotating log file: %v", err)
		}
	}

	return wp.lWriter.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
