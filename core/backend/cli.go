package backend

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLILister lists models by running `ollama list`, for when the HTTP API is
// not reachable.
type CLILister struct {
	Command string
}

func NewCLILister() CLILister {
	return CLILister{Command: "ollama"}
}

func (c CLILister) ListModels(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, c.Command, "list").Output()
	if err != nil {
		return nil, fmt.Errorf("%s list: %w", c.Command, err)
	}
	return ParseList(string(out)), nil
}

// ParseList extracts the model names from `ollama list` output: the first
// column of every row below the header.
func ParseList(out string) []string {
	var models []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		models = append(models, fields[0])
	}
	return models
}
