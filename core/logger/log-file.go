// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// FileLogger - Writes log lines to a rotating file as well as stdout, so a long prep run
// leaves a record behind once the terminal is gone
type FileLogger struct {
	file     *lumberjack.Logger
	out      *log.Logger
	logLevel LogLevel
}

// InitFileLogger - maxSizeMB and maxAgeDays are passed through to the rotation settings
func InitFileLogger(filePath string, level LogLevel, maxSizeMB int, maxAgeDays int) *FileLogger {
	f := &lumberjack.Logger{
		Filename: filePath,
		MaxSize:  maxSizeMB,
		MaxAge:   maxAgeDays,
	}

	return &FileLogger{
		file:     f,
		out:      log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags),
		logLevel: level,
	}
}

func (l *FileLogger) Printf(level LogLevel, format string, a ...interface{}) {
	if l.logLevel > level {
		return
	}
	l.out.Println(logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...))
}
func (l *FileLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *FileLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *FileLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

// Close - flushes and closes the underlying log file
func (l *FileLogger) Close() error {
	return l.file.Close()
}
