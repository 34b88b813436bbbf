// Package cmd provides the CLI commands for switchstore.
package cmd

import (
	"fmt"
	"time"

	"github.com/indexkit/switchstore/internal/version"
)

const (
	// Time duration constants for relative time formatting.
	hoursPerDay  = 24
	daysPerWeek  = 7
	daysPerMonth = 30

	// byteUnit is the divisor for human-readable byte sizes.
	byteUnit = 1024
)

// fileEntry is one row of the file listing.
type fileEntry struct {
	Name   string
	Route  string
	Length int64
}

// segmentEntry is one row of the segment listing.
type segmentEntry struct {
	Name      string
	Records   int
	Bytes     int64
	WrittenAt time.Time
}

// verifyEntry is the verification outcome for one segment.
type verifyEntry struct {
	Name string
	Err  error
}

// displayFileList prints one line per file with its route and size.
//
//nolint:forbidigo // CLI user output function
func displayFileList(files []fileEntry, total int64) {
	if len(files) == 0 {
		fmt.Println("No files found")
		return
	}

	for _, file := range files {
		fmt.Printf("%-44s %-9s %10s\n", file.Name, file.Route, formatBytes(file.Length))
	}

	fmt.Printf("\n%d file(s), %s total\n", len(files), formatBytes(total))
}

// displaySegments prints one line per committed segment.
//
//nolint:forbidigo // CLI user output function
func displaySegments(segments []segmentEntry) {
	if len(segments) == 0 {
		fmt.Println("No segments found")
		return
	}

	for _, seg := range segments {
		fmt.Printf("%-32s %8d record(s) %10s  written %s\n",
			seg.Name,
			seg.Records,
			formatBytes(seg.Bytes),
			formatTimeSince(seg.WrittenAt))
	}

	fmt.Printf("\n%d segment(s)\n", len(segments))
}

// displayPendingDeletions prints the files deleted while still open.
//
//nolint:forbidigo // CLI user output function
func displayPendingDeletions(names []string) {
	if len(names) == 0 {
		fmt.Println("No pending deletions")
		return
	}

	fmt.Printf("%d file(s) deleted but still held open:\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

// displayVerifyResults prints one line per verified segment and a summary.
//
//nolint:forbidigo // CLI user output function
func displayVerifyResults(results []verifyEntry) {
	if len(results) == 0 {
		fmt.Println("No segments to verify")
		return
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("FAIL %-32s %v\n", res.Name, res.Err)
		} else {
			fmt.Printf("OK   %s\n", res.Name)
		}
	}

	fmt.Printf("\n%d segment(s) verified, %d failed\n", len(results), failed)
}

// displayImported prints the destination of one imported file.
//
//nolint:forbidigo // CLI user output function
func displayImported(name, route string, size int64) {
	fmt.Printf("Imported %s -> %s store (%s)\n", name, route, formatBytes(size))
}

// displayPacked prints the outcome of packing files into a segment.
//
//nolint:forbidigo // CLI user output function
func displayPacked(name string, records int, size int64) {
	fmt.Printf("Packed %d record(s) into segment %s (%s)\n", records, name, formatBytes(size))
}

// displaySnapshotResult prints the commit hash of a snapshot.
//
//nolint:forbidigo // CLI user output function
func displaySnapshotResult(hash string, pushed bool) {
	fmt.Printf("Snapshot committed: %s\n", hash)
	if pushed {
		fmt.Println("Pushed to remote")
	}
}

// displayNoChanges reports a snapshot attempt that found nothing new.
//
//nolint:forbidigo // CLI user output function
func displayNoChanges() {
	fmt.Println("No changes since last snapshot")
}

// displayConnectionOK reports a successful remote connection check.
//
//nolint:forbidigo // CLI user output function
func displayConnectionOK(url string) {
	fmt.Printf("Connection to %s OK\n", url)
}

// displayVersion prints the build metadata.
//
//nolint:forbidigo // CLI user output function
func displayVersion() {
	fmt.Printf("switchstore %s\n", version.Version)
	fmt.Printf("  commit: %s\n", version.Commit)
	fmt.Printf("  built:  %s\n", version.BuildTime)
}

// formatBytes formats a byte count in human-readable form.
func formatBytes(bytes int64) string {
	if bytes < byteUnit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(byteUnit), 0
	for n := bytes / byteUnit; n >= byteUnit; n /= byteUnit {
		div *= byteUnit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTimeSince formats a time as a human-readable relative duration.
func formatTimeSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < hoursPerDay*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < daysPerWeek*hoursPerDay*time.Hour:
		days := int(duration.Hours() / hoursPerDay)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case duration < daysPerMonth*hoursPerDay*time.Hour:
		weeks := int(duration.Hours() / hoursPerDay / daysPerWeek)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(duration.Hours() / hoursPerDay / daysPerMonth)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
