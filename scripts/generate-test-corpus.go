//go:build ignore

// Package main generates a synthetic document corpus for benchmarking
// reindexing passes.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var mdTemplate = `# %s Policy

## Purpose

This policy defines how %s handles %s across the organization. It
applies to every %s and to all systems that process related records.

## Scope

The policy covers %s activities performed on company infrastructure,
including third-party services operated on the company's behalf.

## Requirements

1. Every %s must complete a review before %s begins.
2. Records relating to %s are retained for %s and then destroyed.
3. Exceptions require written approval from the %s owner.
4. Violations are reported within %s of discovery.

## Responsibilities

| Role | Responsibility |
|------|----------------|
| %s | Owns this policy and approves exceptions |
| %s | Implements the controls described above |
| %s | Audits compliance on a quarterly basis |

## Review

This policy is reviewed every %s. Material changes are announced to
all affected parties at least %s in advance.
`

var txtTemplate = `MEMO: %s procedures

Effective immediately, all %s activities follow the updated procedure
below. The previous guidance on %s is withdrawn.

Step one. Confirm the %s has a current agreement on file. Agreements
older than %s must be renewed before work continues.

Step two. Record the activity in the %s register within %s. Entries
must name the responsible %s and the systems involved.

Step three. If the activity touches %s, notify the %s owner and wait
for written acknowledgement before proceeding.

Questions about this memo go to the %s team.
`

var htmlTemplate = `<!DOCTYPE html>
<html>
<head><title>%s Guidelines</title></head>
<body>
<h1>%s Guidelines</h1>
<p>These guidelines describe the expected handling of %s for every
%s. They supplement the formal policy and do not replace it.</p>
<h2>Principles</h2>
<ul>
<li>Access to %s records is granted on a need-to-know basis.</li>
<li>Requests are logged and reviewed every %s.</li>
<li>The %s must approve any transfer to an external party.</li>
</ul>
<h2>Retention</h2>
<p>Material covered by these guidelines is kept for %s. After that
period it is removed from active systems and from backups within a
further %s.</p>
<h2>Contact</h2>
<p>Direct questions to the %s team.</p>
</body>
</html>
`

// Word pools for generating plausible document content
var (
	subjects = []string{
		"Data Retention", "Acceptable Use", "Access Control", "Incident Response",
		"Vendor Management", "Records Management", "Remote Work", "Asset Handling",
		"Change Management", "Business Continuity", "Privacy", "Procurement",
		"Onboarding", "Offboarding", "Expense Reporting", "Travel",
	}
	actors = []string{
		"employee", "contractor", "vendor", "tenant", "customer",
		"administrator", "reviewer", "department head", "team lead",
	}
	topics = []string{
		"personal data", "customer records", "financial statements",
		"access credentials", "audit logs", "contract documents",
		"support tickets", "payroll records", "system backups",
	}
	periods = []string{
		"thirty days", "ninety days", "six months", "one year",
		"two years", "five years", "seven years",
	}
	teams = []string{
		"compliance", "security", "legal", "operations", "facilities",
		"people", "finance", "engineering",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	subdirs := []string{"policies", "notes", "site"}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating subdirectory %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d documents in %s...\n", *numFiles, *outputDir)

	// Distribute across formats the way a real corpus skews
	mdFiles := *numFiles * 60 / 100
	txtFiles := *numFiles * 25 / 100
	htmlFiles := *numFiles - mdFiles - txtFiles

	generated := 0
	for i := 0; i < mdFiles; i++ {
		if err := generateMarkdown(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating markdown %d: %v\n", i, err)
		}
		generated++
	}
	for i := 0; i < txtFiles; i++ {
		if err := generateText(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating text %d: %v\n", i, err)
		}
		generated++
	}
	for i := 0; i < htmlFiles; i++ {
		if err := generateHTML(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating html %d: %v\n", i, err)
		}
		generated++
	}

	fmt.Printf("Generated %d documents successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func generateMarkdown(rng *rand.Rand, index int) error {
	subject := pick(rng, subjects)
	team := pick(rng, teams)
	topic := pick(rng, topics)

	content := fmt.Sprintf(mdTemplate,
		subject,
		team, topic, pick(rng, actors),
		topic,
		pick(rng, actors), topic,
		topic, pick(rng, periods),
		subject, pick(rng, periods),
		pick(rng, teams), pick(rng, teams), pick(rng, teams),
		pick(rng, periods), pick(rng, periods),
	)

	name := fmt.Sprintf("%s_%d.md", slug(subject), index)
	return os.WriteFile(filepath.Join(*outputDir, "policies", name), []byte(content), 0644)
}

func generateText(rng *rand.Rand, index int) error {
	subject := pick(rng, subjects)
	topic := pick(rng, topics)

	content := fmt.Sprintf(txtTemplate,
		subject,
		topic, topic,
		pick(rng, actors), pick(rng, periods),
		subject, pick(rng, periods), pick(rng, actors),
		pick(rng, topics), subject,
		pick(rng, teams),
	)

	name := fmt.Sprintf("%s_%d.txt", slug(subject), index)
	return os.WriteFile(filepath.Join(*outputDir, "notes", name), []byte(content), 0644)
}

func generateHTML(rng *rand.Rand, index int) error {
	subject := pick(rng, subjects)
	topic := pick(rng, topics)

	content := fmt.Sprintf(htmlTemplate,
		subject, subject,
		topic, pick(rng, actors),
		topic, pick(rng, periods),
		pick(rng, actors),
		pick(rng, periods), pick(rng, periods),
		pick(rng, teams),
	)

	name := fmt.Sprintf("%s_%d.html", slug(subject), index)
	return os.WriteFile(filepath.Join(*outputDir, "site", name), []byte(content), 0644)
}

// slug lowercases a subject into a file-name-safe token.
func slug(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
