// Command courseimport converts an authored xlsx workbook into a course
// JSON document ready to serve.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/simon-b64/study-questions/internal/course"
)

func main() {
	in := flag.String("in", "", "path to the xlsx workbook")
	out := flag.String("out", "", "path of the course JSON file to write")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: courseimport -in questions.xlsx -out course.json")
		os.Exit(2)
	}

	c, result, err := course.ReadWorkbook(*in)
	if err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
	for _, skipped := range result.Skipped {
		slog.Warn("skipped row", "reason", skipped)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		slog.Error("failed to serialize course", "error", err)
		os.Exit(1)
	}

	// Round-trip through the loader's validation so a broken workbook
	// never produces an unservable course file.
	if _, err := course.Parse(data); err != nil {
		slog.Error("imported course failed validation", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		slog.Error("failed to write course file", "error", err)
		os.Exit(1)
	}

	slog.Info("course imported", "groups", result.Groups, "questions", result.Questions, "out", *out)
}
