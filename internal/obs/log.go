package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the client.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stderr, "", 0)
	})
	return logger
}

// SetOutput redirects the shared logger.
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}

// Log emits one JSON line with ts, level and msg plus the given fields.
// Fields named ts, level or msg are overwritten.
func Log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	Write(entry)
}

// Write marshals entry as a single JSON line.
func Write(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

func Info(msg string, fields map[string]any)  { Log(LevelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { Log(LevelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { Log(LevelError, msg, fields) }
