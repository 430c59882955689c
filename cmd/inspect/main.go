package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/storage"
	"github.com/olekukonko/tablewriter"
)

const maxValueWidth = 80

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "data/badger", "path to the relay badger directory")
	prefix := flag.String("prefix", "", "key prefix to scan, e.g. user: or msg:g:")
	hideSecrets := flag.Bool("redact", true, "hide password hashes")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "error", Format: "text"})

	// read-only with the lock guard bypassed, so it can run next to the server
	db, err := storage.Open(storage.OpenOptions{Path: *dbPath, ReadOnly: true}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := storage.NewStore(db, 0, logger)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Bytes", "Value"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = store.Scan(*prefix, func(key string, value []byte) error {
		table.Append([]string{key, fmt.Sprint(len(value)), summarize(value, *hideSecrets)})
		rows++
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	fmt.Printf("%d keys\n", rows)
	return nil
}

// summarize renders a value on one line. Index entries are plain strings,
// records are JSON objects.
func summarize(value []byte, redact bool) string {
	var record map[string]any
	if err := json.Unmarshal(value, &record); err == nil {
		if _, ok := record["passwordHash"]; ok && redact {
			record["passwordHash"] = "***"
		}
		if compact, err := json.Marshal(record); err == nil {
			value = compact
		}
	}

	s := strings.ReplaceAll(string(value), "\n", " ")
	if len(s) > maxValueWidth {
		s = s[:maxValueWidth-3] + "..."
	}
	return s
}
