package execution

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseCommand parses one order line of the form "bid|ask <asset> <price>".
func ParseCommand(line string) (asset, price string, isBid bool, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", false, fmt.Errorf("expected \"bid|ask <asset> <price>\", got %q", line)
	}
	switch strings.ToLower(fields[0]) {
	case "bid", "buy":
		isBid = true
	case "ask", "sell":
	default:
		return "", "", false, fmt.Errorf("unknown side %q", fields[0])
	}
	return fields[1], fields[2], isBid, nil
}

// ReadCommands enters one order per non-empty line of r until r is exhausted
// or ctx is done. A bad line is logged and skipped. It returns the number of
// orders entered.
func (e *OrderEntry) ReadCommands(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	entered := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return entered, ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		asset, price, isBid, err := ParseCommand(line)
		if err == nil {
			_, err = e.Enter(ctx, asset, price, isBid)
		}
		if err != nil {
			slog.Warn("Order rejected", slog.String("input", line), slog.Any("error", err))
			continue
		}
		entered++
	}
	return entered, scanner.Err()
}
