package parity

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CLI wraps an external par2 binary, parsing its textual stdout instead
// of trusting the process exit code (spec.md §6). The teacher's
// internal/repair/par2cmd.go trusted exit codes 0/1/2+ directly; par2
// exit codes collapse too much state for Verify/Repair's "damaged: bool,
// damaged_files[], blocks_needed, blocks_available" contract, so this
// implementation parses the tool's progress lines instead.
type CLI struct {
	BinaryPath string
}

// Discover locates a par2 binary per spec.md §6: an explicit path wins,
// otherwise a PATH search is attempted only when enabled.
func Discover(explicitPath string, searchPath bool) Handler {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return &CLI{BinaryPath: explicitPath}
		}
	}
	if searchPath {
		if p, err := exec.LookPath("par2"); err == nil {
			return &CLI{BinaryPath: p}
		}
	}
	return NoOp{}
}

func (c *CLI) Capabilities() Capabilities {
	return Capabilities{CanVerify: true, CanRepair: true, HandlerName: "par2:" + c.BinaryPath}
}

func (c *CLI) Verify(ctx context.Context, dir string) (*VerifyResult, error) {
	main, err := findMainPar2File(dir)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.BinaryPath, "v", main)
	out, _ := cmd.CombinedOutput()
	return parseVerifyOutput(string(out)), nil
}

func (c *CLI) Repair(ctx context.Context, dir string) (*RepairResult, error) {
	main, err := findMainPar2File(dir)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.BinaryPath, "r", main)
	out, _ := cmd.CombinedOutput()
	return parseRepairOutput(string(out)), nil
}

var targetLineRe = regexp.MustCompile(`^Target:\s+"([^"]+)"\s+-\s+(damaged|missing)`)
var needMoreBlocksRe = regexp.MustCompile(`You need (\d+) more recovery block`)
var availableBlocksRe = regexp.MustCompile(`You have (\d+) recovery block`)

// parseVerifyOutput never trusts the process exit code, only the
// tool's own textual report of damaged targets and recovery capacity.
func parseVerifyOutput(output string) *VerifyResult {
	res := &VerifyResult{}
	var extraNeeded, available int
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case targetLineRe.MatchString(line):
			m := targetLineRe.FindStringSubmatch(line)
			res.Damaged = true
			res.DamagedFiles = append(res.DamagedFiles, m[1])
			res.DamagedBlocks++
		case strings.Contains(line, "Repair is required"):
			res.Damaged = true
		case strings.Contains(line, "All files are correct"):
			res.Damaged = false
		case needMoreBlocksRe.MatchString(line):
			extraNeeded, _ = strconv.Atoi(needMoreBlocksRe.FindStringSubmatch(line)[1])
		case availableBlocksRe.MatchString(line):
			available, _ = strconv.Atoi(availableBlocksRe.FindStringSubmatch(line)[1])
		}
	}
	res.BlocksAvailable = available
	if extraNeeded > 0 {
		res.BlocksNeeded = available + extraNeeded
	} else if res.Damaged {
		res.BlocksNeeded = available
	}
	return res
}

func parseRepairOutput(output string) *RepairResult {
	res := &RepairResult{}
	var extraNeeded, available int
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.Contains(line, "Repair complete"):
			res.Success = true
		case strings.Contains(line, "Repair failed"), strings.Contains(line, "Repair is not possible"):
			res.Success = false
		case needMoreBlocksRe.MatchString(line):
			extraNeeded, _ = strconv.Atoi(needMoreBlocksRe.FindStringSubmatch(line)[1])
		case availableBlocksRe.MatchString(line):
			available, _ = strconv.Atoi(availableBlocksRe.FindStringSubmatch(line)[1])
		}
	}
	res.BlocksAvailable = available
	if extraNeeded > 0 {
		res.BlocksNeeded = available + extraNeeded
	}
	return res
}

// findMainPar2File picks the base .par2 index (e.g. "name.par2" rather
// than "name.vol012+034.par2"), the file par2 expects as its argument.
func findMainPar2File(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.par2"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("parity: no .par2 file found in %s", dir)
	}
	sort.Slice(matches, func(i, j int) bool {
		return !strings.Contains(matches[i], ".vol") && strings.Contains(matches[j], ".vol")
	})
	for _, m := range matches {
		if !strings.Contains(filepath.Base(m), ".vol") {
			return m, nil
		}
	}
	return matches[0], nil
}
