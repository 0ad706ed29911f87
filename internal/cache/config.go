package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/mem"
)

// ParseMaxBytes implements spec.md §4.5's maxBytes grammar: either an
// absolute size string ("100MB", "1.5GB", "512KB", case-insensitive) or
// a percentage of host physical memory ("25%", strictly in (0, 100]).
func ParseMaxBytes(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("cache: empty maxBytes string")
	}

	if strings.HasSuffix(trimmed, "%") {
		pctStr := strings.TrimSuffix(trimmed, "%")
		pct, err := strconv.ParseFloat(strings.TrimSpace(pctStr), 64)
		if err != nil {
			return 0, fmt.Errorf("cache: invalid percentage %q: %w", s, err)
		}
		if pct <= 0 || pct > 100 {
			return 0, fmt.Errorf("cache: percentage %q out of range (0, 100]", s)
		}
		vm, err := mem.VirtualMemory()
		if err != nil {
			return 0, fmt.Errorf("cache: reading host memory: %w", err)
		}
		return int64(float64(vm.Total) * pct / 100.0), nil
	}

	n, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("cache: invalid maxBytes %q: %w", s, err)
	}
	return int64(n), nil
}
