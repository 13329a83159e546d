package box

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/fushar/regrader/eval"
)

// ParseMetaFile parses the key:value result file written by the box.
// Unknown keys are kept in Fields only.
func ParseMetaFile(r io.Reader) *eval.RunStats {
	if r == nil {
		return nil
	}
	var file = &eval.RunStats{Fields: make(map[string]string)}

	s := bufio.NewScanner(r)

	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		file.Fields[key] = val
		switch key {
		case "status":
			file.Status = val
		case "exitcode":
			file.ExitCode, _ = strconv.Atoi(val)
		case "exitsig":
			file.ExitSignal, _ = strconv.Atoi(val)
		case "killed":
			file.Killed = true
		case "message":
			file.Message = val
		case "time-wall":
			file.WallTime, _ = strconv.ParseFloat(val, 64)
		case "mem":
			file.Memory, _ = strconv.ParseInt(val, 10, 64)
		}
	}

	return file
}
