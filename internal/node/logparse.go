package node

import (
	"strconv"
	"strings"
)

// BlocksPerDay is the average mainnet block production rate, used to turn
// a "days remaining" log hint into a block count.
const BlocksPerDay = 1000

// ParseDaysRemaining extracts the days figure from the newest chain log
// line of the form "... (122d, 09h, 25m, 09s) block time remaining ...".
// Log scraping is a best-effort fallback; any shape mismatch returns ok
// false rather than a guess.
func ParseDaysRemaining(chainLogs string) (float32, bool) {
	var line string
	for _, l := range strings.Split(chainLogs, "\n") {
		if strings.Contains(l, "block time remaining") {
			line = l
		}
	}
	if line == "" {
		return 0, false
	}

	start := strings.Index(line, "(")
	end := strings.Index(line, "d,")
	if start < 0 || end < 0 || end <= start {
		return 0, false
	}
	days, err := strconv.ParseFloat(strings.TrimSpace(line[start+1:end]), 32)
	if err != nil {
		return 0, false
	}
	return float32(days), true
}

// EstimateTargetFromLogs estimates the sync target height from the chain
// container's recent log output. Returns ok false when no usable hint is
// present.
func EstimateTargetFromLogs(currentBlock uint64, chainLogs string) (uint64, bool) {
	days, ok := ParseDaysRemaining(chainLogs)
	if !ok {
		return 0, false
	}
	return currentBlock + uint64(days*BlocksPerDay), true
}

// ParseTimeRemaining extracts the human-readable remaining-time interval
// from the newest sync progress log line, e.g. "122d, 09h, 25m, 09s".
func ParseTimeRemaining(chainLogs string) (string, bool) {
	lines := strings.Split(chainLogs, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "Sync progress") || !strings.Contains(line, "block time remaining") {
			continue
		}
		start := strings.Index(line, "(")
		end := strings.Index(line, " block time remaining")
		if start < 0 || end <= start {
			continue
		}
		return strings.TrimSuffix(line[start+1:end], ")"), true
	}
	return "", false
}

// CountPeers counts peer connection announcements in recent p2p log
// output.
func CountPeers(p2pLogs string) int {
	return strings.Count(p2pLogs, "Connected to peer")
}
