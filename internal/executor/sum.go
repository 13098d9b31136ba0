package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Sum handles payloads of comma-separated integers and returns their sum.
type Sum struct{}

func (Sum) Handle(_ context.Context, payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", fmt.Errorf("empty payload")
	}
	total := 0
	for _, part := range strings.Split(payload, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return "", fmt.Errorf("bad number %q: %w", part, err)
		}
		total += n
	}
	return strconv.Itoa(total), nil
}
