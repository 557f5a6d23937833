package main

import (
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

func newTabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
}

func makeExample(examples ...string) string {
	var s []string
	for _, ex := range examples {
		s = append(s, "  "+ex)
	}
	return strings.Join(s, "\n")
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
