package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// maxLogsResponseBytes is the truncation limit for /logs responses.
const maxLogsResponseBytes = 1_900_000

// logPriorities orders the priority names /logs accepts from least to most
// verbose, mirroring obslog's severities plus its TraceXrc tier.
var logPriorities = map[string]int{
	"Error":    0,
	"Warn":     1,
	"Info":     2,
	"Debug":    3,
	"TraceXrc": 4,
}

func severityRank(severity string) int {
	switch strings.ToUpper(severity) {
	case "ERROR":
		return 0
	case "WARN":
		return 1
	case "INFO":
		return 2
	case "DEBUG":
		return 3
	case "TRACE_XRC":
		return 4
	default:
		return 2
	}
}

// logs serves /logs?priority=Info|Debug|TraceXrc&time=<ns>: every JSON log
// line at or below the requested verbosity, emitted no earlier than time,
// as a JSON array truncated at maxLogsResponseBytes.
func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	priority := r.URL.Query().Get("priority")
	if priority == "" {
		priority = "Info"
	}
	maxRank, ok := logPriorities[priority]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown priority " + priority})
		return
	}

	var sinceNanos uint64
	if t := r.URL.Query().Get("time"); t != "" {
		parsed, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid time: " + err.Error()})
			return
		}
		sinceNanos = parsed
	}

	if h.cfg.LogFilePath == "" {
		writeJSON(w, http.StatusOK, []json.RawMessage{})
		return
	}

	f, err := os.Open(h.cfg.LogFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []json.RawMessage{})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("["))

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	written := 0
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		var entry struct {
			Severity  string `json:"severity"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if severityRank(entry.Severity) > maxRank {
			continue
		}
		if sinceNanos > 0 && !timestampAtOrAfter(entry.Timestamp, sinceNanos) {
			continue
		}

		if written+len(line)+1 > maxLogsResponseBytes {
			break
		}
		if !first {
			_, _ = w.Write([]byte(","))
		}
		first = false
		n, _ := w.Write(line)
		written += n + 1
	}

	_, _ = w.Write([]byte("]"))
}
