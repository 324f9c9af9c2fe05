package detach

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"time"
)

// bootTime is read once: it only changes across reboots, and a reboot also
// restarts the pid counter.
var bootTime = sync.OnceValues(func() (uint64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}
	for line := range bytes.SplitSeq(data, []byte("\n")) {
		if rest, ok := bytes.CutPrefix(line, []byte("btime ")); ok {
			return strconv.ParseUint(string(bytes.TrimSpace(rest)), 10, 64)
		}
	}
	return 0, fmt.Errorf("btime not found in /proc/stat")
})

// readProcInfo returns the fingerprint and scheduler state of pid. The
// fingerprint hashes the boot time with the process start time, so a pid
// that was recycled by a later process never matches.
func readProcInfo(pid int) (procInfo, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return procInfo{}, err
	}

	state, start, err := parseStat(data)
	if err != nil {
		return procInfo{}, fmt.Errorf("/proc/%d/stat: %w", pid, err)
	}

	btime, err := bootTime()
	if err != nil {
		return procInfo{}, err
	}

	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], btime)
	binary.LittleEndian.PutUint64(buf[8:], start)
	h.Write(buf[:])

	return procInfo{
		Generation: h.Sum64(),
		State:      state,
		Verifiable: true,
	}, nil
}

// generationOf fingerprints a process that was just started.
func generationOf(pid int, _ time.Time) (uint64, error) {
	info, err := readProcInfo(pid)
	if err != nil {
		return 0, err
	}
	return info.Generation, nil
}

// parseStat extracts the state letter and start time from a stat line. comm
// may contain spaces and parentheses, so fields resume after the last ')'.
func parseStat(data []byte) (byte, uint64, error) {
	end := bytes.LastIndexByte(data, ')')
	if end < 0 || end+2 >= len(data) {
		return 0, 0, fmt.Errorf("malformed stat line")
	}
	fields := bytes.Fields(data[end+2:])
	// fields[0] is field 3 (state); starttime is field 22
	const startTimeIdx = 22 - 3
	if len(fields) <= startTimeIdx || len(fields[0]) == 0 {
		return 0, 0, fmt.Errorf("malformed stat line")
	}
	start, err := strconv.ParseUint(string(fields[startTimeIdx]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed start time: %w", err)
	}
	return fields[0][0], start, nil
}
